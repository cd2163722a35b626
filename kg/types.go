// Package kg defines the core knowledge-graph data model and the
// capability ports the ingestion pipeline writes through. Storage
// backends, LLM providers, and embedders implement these interfaces;
// the pipeline itself never depends on a concrete backend.
package kg

import "strings"

// Processing status values for a document's ingestion lifecycle.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Metadata keys recognised on a Document's metadata bag.
const (
	MetaProjectID  = "projectId"
	MetaDocumentID = "documentId"
	MetaFilePath   = "filepath"
)

// Document is the opaque ingestion input: an id, raw text, and a
// metadata bag. The bag must carry MetaProjectID; MetaDocumentID and
// MetaFilePath are optional.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ProjectID returns the project namespace from the metadata bag, or ""
// when absent.
func (d Document) ProjectID() string {
	return d.Metadata[MetaProjectID]
}

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus struct {
	DocID         string `json:"doc_id"`
	FilePath      string `json:"file_path,omitempty"`
	ContentHash   string `json:"content_hash,omitempty"`
	Status        string `json:"status"`
	ChunkCount    int    `json:"chunk_count"`
	EntityCount   int    `json:"entity_count"`
	RelationCount int    `json:"relation_count"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Chunk is a token-bounded slice of a document. Immutable once created.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	SourceDocID string `json:"source_doc_id"`
	Index       int    `json:"index"`
	Content     string `json:"content"`
	TokenCount  int    `json:"token_count"`
}

// Entity is a typed graph node. Identity within a project is the
// normalised name.
type Entity struct {
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description"`
	SourceIDs   SourceIDs `json:"source_chunk_ids,omitempty"`
	Aliases     []string  `json:"aliases,omitempty"`
	FilePath    string    `json:"file_path,omitempty"`
	DocumentID  string    `json:"document_id,omitempty"`
}

// Relation is a directed, weighted edge between two entities,
// referenced by name only.
type Relation struct {
	SrcName     string    `json:"src_name"`
	TgtName     string    `json:"tgt_name"`
	Description string    `json:"description"`
	Keywords    string    `json:"keywords,omitempty"`
	Weight      float64   `json:"weight"`
	SourceIDs   SourceIDs `json:"source_chunk_ids,omitempty"`
}

// Vector entry types.
const (
	VectorTypeChunk  = "chunk"
	VectorTypeEntity = "entity"
)

// VectorEntry is one row in a vector store.
type VectorEntry struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata VectorMetadata `json:"metadata"`
}

// VectorMetadata is the metadata carried alongside a stored vector.
type VectorMetadata struct {
	Type       string `json:"type"` // VectorTypeChunk or VectorTypeEntity
	Content    string `json:"content,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
}

// VectorMatch is a search hit from a vector store.
type VectorMatch struct {
	Entry VectorEntry `json:"entry"`
	Score float64     `json:"score"`
}

// Extraction cache types.
const (
	CacheEntityExtraction  = "ENTITY_EXTRACTION"
	CacheGleaning          = "GLEANING"
	CacheSummarization     = "SUMMARIZATION"
	CacheKeywordExtraction = "KEYWORD_EXTRACTION"
	CacheQueryResponse     = "QUERY_RESPONSE"
)

// CacheEntry is a cached LLM result, keyed by
// (project, cache type, SHA-256 of the input).
type CacheEntry struct {
	ProjectID   string `json:"project_id"`
	CacheType   string `json:"cache_type"`
	ChunkID     string `json:"chunk_id,omitempty"`
	ContentHash string `json:"content_hash"`
	Result      string `json:"result"`
	TokensUsed  int    `json:"tokens_used,omitempty"`
}

// NormalizeName canonicalises an entity name: surrounding quotes are
// stripped, whitespace is trimmed and collapsed, and the result is
// truncated to maxLen runes. maxLen <= 0 disables truncation.
func NormalizeName(name string, maxLen int) string {
	name = strings.TrimSpace(name)
	for len(name) >= 2 {
		first, last := name[0], name[len(name)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			name = strings.TrimSpace(name[1 : len(name)-1])
			continue
		}
		break
	}
	name = strings.Join(strings.Fields(name), " ")
	if maxLen > 0 {
		if r := []rune(name); len(r) > maxLen {
			name = string(r[:maxLen])
		}
	}
	return name
}
