package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Document ingestion lifecycle
CREATE TABLE IF NOT EXISTS document_status (
    doc_id TEXT PRIMARY KEY,
    file_path TEXT,
    content_hash TEXT,
    status TEXT NOT NULL,
    chunk_count INTEGER DEFAULT 0,
    entity_count INTEGER DEFAULT 0,
    relation_count INTEGER DEFAULT 0,
    error_message TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Raw chunk text, keyed by chunk id
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector metadata; the embedding itself lives in vec_entries keyed by
-- this table's rowid
CREATE TABLE IF NOT EXISTS vectors (
    rowid INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    content TEXT,
    document_id TEXT,
    chunk_index INTEGER DEFAULT 0,
    project_id TEXT
);

-- Vector embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_entries USING vec0(
    vector_rowid INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Knowledge graph: entities, identified by (project, name)
CREATE TABLE IF NOT EXISTS entities (
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    entity_type TEXT,
    description TEXT,
    aliases JSON,
    source_ids JSON,
    file_path TEXT,
    document_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (project_id, name)
);

-- Knowledge graph: directed relations, referenced by entity name
CREATE TABLE IF NOT EXISTS relations (
    project_id TEXT NOT NULL,
    src_name TEXT NOT NULL,
    tgt_name TEXT NOT NULL,
    description TEXT,
    keywords TEXT,
    weight REAL DEFAULT 1.0,
    source_ids JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (project_id, src_name, tgt_name)
);

-- Memoised LLM results
CREATE TABLE IF NOT EXISTS extraction_cache (
    project_id TEXT NOT NULL,
    cache_type TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    chunk_id TEXT,
    result TEXT NOT NULL,
    tokens_used INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (project_id, cache_type, content_hash)
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);
CREATE INDEX IF NOT EXISTS idx_vectors_type ON vectors(type);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_relations_src ON relations(project_id, src_name);
CREATE INDEX IF NOT EXISTS idx_relations_tgt ON relations(project_id, tgt_name);
CREATE INDEX IF NOT EXISTS idx_status_hash ON document_status(content_hash);
`, embeddingDim)
}
