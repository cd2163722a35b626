// Package store provides the bundled SQLite backend for all engine
// ports: document status, chunk text, knowledge-graph tables, vector
// search via sqlite-vec, and the extraction cache.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/graphloom/graphloom/kg"
)

func init() {
	sqlite_vec.Auto()
}

// Description accumulation bounds applied when an upsert collides with
// an existing row.
const (
	descSeparator = " | "
	descMaxLen    = 1000
)

// Store wraps the SQLite database for all graphloom persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- StatusStore ---

// Get returns the status row for a document, or (nil, nil) when no row
// exists.
func (s *Store) Get(ctx context.Context, docID string) (*kg.DocumentStatus, error) {
	st := &kg.DocumentStatus{}
	var filePath, contentHash, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, file_path, content_hash, status,
			chunk_count, entity_count, relation_count, error_message,
			created_at, updated_at
		FROM document_status WHERE doc_id = ?
	`, docID).Scan(&st.DocID, &filePath, &contentHash, &st.Status,
		&st.ChunkCount, &st.EntityCount, &st.RelationCount, &errMsg,
		&st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status for %s: %w", docID, err)
	}
	st.FilePath = filePath.String
	st.ContentHash = contentHash.String
	st.ErrorMessage = errMsg.String
	return st, nil
}

// Set inserts or replaces a document's status row.
func (s *Store) Set(ctx context.Context, st kg.DocumentStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_status
			(doc_id, file_path, content_hash, status, chunk_count, entity_count, relation_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			file_path = excluded.file_path,
			content_hash = excluded.content_hash,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			entity_count = excluded.entity_count,
			relation_count = excluded.relation_count,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, st.DocID, st.FilePath, st.ContentHash, st.Status,
		st.ChunkCount, st.EntityCount, st.RelationCount, st.ErrorMessage)
	if err != nil {
		return fmt.Errorf("writing status for %s: %w", st.DocID, err)
	}
	return nil
}

// List returns every status row, newest first.
func (s *Store) List(ctx context.Context) ([]kg.DocumentStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, file_path, content_hash, status,
			chunk_count, entity_count, relation_count, error_message,
			created_at, updated_at
		FROM document_status ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kg.DocumentStatus
	for rows.Next() {
		var st kg.DocumentStatus
		var filePath, contentHash, errMsg sql.NullString
		if err := rows.Scan(&st.DocID, &filePath, &contentHash, &st.Status,
			&st.ChunkCount, &st.EntityCount, &st.RelationCount, &errMsg,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.FilePath = filePath.String
		st.ContentHash = contentHash.String
		st.ErrorMessage = errMsg.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// Delete removes a document's status row.
func (s *Store) Delete(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM document_status WHERE doc_id = ?", docID)
	return err
}

// --- ChunkStore ---

// InsertChunk stores raw chunk text under its id.
func (s *Store) InsertChunk(ctx context.Context, id, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunks (chunk_id, content) VALUES (?, ?)",
		id, content)
	return err
}

// GetChunk retrieves raw chunk text by id.
func (s *Store) GetChunk(ctx context.Context, id string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM chunks WHERE chunk_id = ?", id).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("chunk %s not found", id)
	}
	return content, err
}

// Chunks returns a kg.ChunkStore view over this store. The chunk port's
// method names collide with the status port on Store itself, so the
// view is a thin adapter.
func (s *Store) Chunks() kg.ChunkStore {
	return chunkStore{s}
}

type chunkStore struct {
	s *Store
}

func (c chunkStore) Set(ctx context.Context, id, content string) error {
	return c.s.InsertChunk(ctx, id, content)
}

func (c chunkStore) Get(ctx context.Context, id string) (string, error) {
	return c.s.GetChunk(ctx, id)
}

// --- GraphStore ---

// UpsertEntities writes a batch of entities in one transaction. A
// colliding row keeps its accumulated description: new text that is not
// already contained is appended with the standard separator and capped.
func (s *Store) UpsertEntities(ctx context.Context, projectID string, entities []kg.Entity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entities {
			var existingDesc sql.NullString
			var existingSources sql.NullString
			err := tx.QueryRowContext(ctx,
				"SELECT description, source_ids FROM entities WHERE project_id = ? AND name = ?",
				projectID, e.Name).Scan(&existingDesc, &existingSources)
			if err != nil && err != sql.ErrNoRows {
				return err
			}

			desc := accumulateDescription(existingDesc.String, e.Description)
			sources := mergeSourceIDs(existingSources.String, e.SourceIDs)

			aliases, _ := json.Marshal(e.Aliases)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities
					(project_id, name, entity_type, description, aliases, source_ids, file_path, document_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(project_id, name) DO UPDATE SET
					entity_type = COALESCE(NULLIF(excluded.entity_type, ''), entities.entity_type),
					description = excluded.description,
					aliases = excluded.aliases,
					source_ids = excluded.source_ids,
					file_path = COALESCE(NULLIF(excluded.file_path, ''), entities.file_path),
					document_id = COALESCE(NULLIF(excluded.document_id, ''), entities.document_id),
					updated_at = CURRENT_TIMESTAMP
			`, projectID, e.Name, e.Type, desc, string(aliases), sources, e.FilePath, e.DocumentID); err != nil {
				return fmt.Errorf("upserting entity %q: %w", e.Name, err)
			}
		}
		return nil
	})
}

// UpsertRelations writes a batch of relations in one transaction,
// accumulating descriptions and weights on collision.
func (s *Store) UpsertRelations(ctx context.Context, projectID string, relations []kg.Relation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range relations {
			var existingDesc sql.NullString
			var existingSources sql.NullString
			var existingWeight sql.NullFloat64
			err := tx.QueryRowContext(ctx,
				"SELECT description, source_ids, weight FROM relations WHERE project_id = ? AND src_name = ? AND tgt_name = ?",
				projectID, r.SrcName, r.TgtName).Scan(&existingDesc, &existingSources, &existingWeight)
			if err != nil && err != sql.ErrNoRows {
				return err
			}

			desc := accumulateDescription(existingDesc.String, r.Description)
			sources := mergeSourceIDs(existingSources.String, r.SourceIDs)
			weight := r.Weight
			if existingWeight.Valid {
				weight += existingWeight.Float64
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO relations
					(project_id, src_name, tgt_name, description, keywords, weight, source_ids)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(project_id, src_name, tgt_name) DO UPDATE SET
					description = excluded.description,
					keywords = COALESCE(NULLIF(excluded.keywords, ''), relations.keywords),
					weight = excluded.weight,
					source_ids = excluded.source_ids,
					updated_at = CURRENT_TIMESTAMP
			`, projectID, r.SrcName, r.TgtName, desc, r.Keywords, weight, sources); err != nil {
				return fmt.Errorf("upserting relation %q -> %q: %w", r.SrcName, r.TgtName, err)
			}
		}
		return nil
	})
}

// GetEntity reads one entity row back.
func (s *Store) GetEntity(ctx context.Context, projectID, name string) (*kg.Entity, error) {
	var e kg.Entity
	var typ, desc, aliases, sources, filePath, documentID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT name, entity_type, description, aliases, source_ids, file_path, document_id
		FROM entities WHERE project_id = ? AND name = ?
	`, projectID, name).Scan(&e.Name, &typ, &desc, &aliases, &sources, &filePath, &documentID)
	if err != nil {
		return nil, err
	}
	e.Type = typ.String
	e.Description = desc.String
	e.FilePath = filePath.String
	e.DocumentID = documentID.String
	if aliases.Valid {
		_ = json.Unmarshal([]byte(aliases.String), &e.Aliases)
	}
	if sources.Valid {
		_ = json.Unmarshal([]byte(sources.String), &e.SourceIDs)
	}
	return &e, nil
}

// CountEntities returns the number of entities in a project.
func (s *Store) CountEntities(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities WHERE project_id = ?", projectID).Scan(&n)
	return n, err
}

// --- VectorStore ---

// UpsertBatch writes vector entries and their metadata in one
// transaction, keyed by the caller-provided id.
func (s *Store) UpsertBatch(ctx context.Context, entries []kg.VectorEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vectors (id, type, content, document_id, chunk_index, project_id)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					type = excluded.type,
					content = excluded.content,
					document_id = excluded.document_id,
					chunk_index = excluded.chunk_index,
					project_id = excluded.project_id
			`, entry.ID, entry.Metadata.Type, entry.Metadata.Content,
				entry.Metadata.DocumentID, entry.Metadata.ChunkIndex, entry.Metadata.ProjectID); err != nil {
				return fmt.Errorf("upserting vector metadata %s: %w", entry.ID, err)
			}

			var rowid int64
			if err := tx.QueryRowContext(ctx,
				"SELECT rowid FROM vectors WHERE id = ?", entry.ID).Scan(&rowid); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO vec_entries (vector_rowid, embedding) VALUES (?, ?)",
				rowid, serializeFloat32(entry.Vector)); err != nil {
				return fmt.Errorf("upserting embedding %s: %w", entry.ID, err)
			}
		}
		return nil
	})
}

// Search performs a KNN search returning the top-k nearest entries.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]kg.VectorMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.type, m.content, m.document_id, m.chunk_index, m.project_id, v.distance
		FROM vec_entries v
		JOIN vectors m ON m.rowid = v.vector_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []kg.VectorMatch
	for rows.Next() {
		var m kg.VectorMatch
		var content, documentID, projectID sql.NullString
		var distance float64
		if err := rows.Scan(&m.Entry.ID, &m.Entry.Metadata.Type, &content,
			&documentID, &m.Entry.Metadata.ChunkIndex, &projectID, &distance); err != nil {
			return nil, err
		}
		m.Entry.Metadata.Content = content.String
		m.Entry.Metadata.DocumentID = documentID.String
		m.Entry.Metadata.ProjectID = projectID.String
		// Convert distance to similarity score (1 - distance for cosine).
		m.Score = 1.0 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// --- ExtractionCache ---

// GetCached looks up a memoised LLM result.
func (s *Store) GetCached(ctx context.Context, projectID, cacheType, contentHash string) (string, bool, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM extraction_cache
		WHERE project_id = ? AND cache_type = ? AND content_hash = ?
	`, projectID, cacheType, contentHash).Scan(&result)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return result, true, nil
}

// Store upserts a memoised LLM result; concurrent writers of the same
// key converge on the last write.
func (s *Store) Store(ctx context.Context, entry kg.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_cache
			(project_id, cache_type, content_hash, chunk_id, result, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, cache_type, content_hash) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			result = excluded.result,
			tokens_used = excluded.tokens_used
	`, entry.ProjectID, entry.CacheType, entry.ContentHash,
		entry.ChunkID, entry.Result, entry.TokensUsed)
	return err
}

// Cache returns a kg.ExtractionCache view over this store, again
// adapting around the status port's Get.
func (s *Store) Cache() kg.ExtractionCache {
	return cacheStore{s}
}

type cacheStore struct {
	s *Store
}

func (c cacheStore) Get(ctx context.Context, projectID, cacheType, contentHash string) (string, bool, error) {
	return c.s.GetCached(ctx, projectID, cacheType, contentHash)
}

func (c cacheStore) Store(ctx context.Context, entry kg.CacheEntry) error {
	return c.s.Store(ctx, entry)
}

// --- Document purge ---

// PurgeDocument removes a document's status row, its chunk text, and
// every vector tagged with the document id. Graph entities survive:
// they belong to the project, not the document.
func (s *Store) PurgeDocument(ctx context.Context, docID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chunks WHERE chunk_id IN (
				SELECT id FROM vectors WHERE document_id = ? AND type = ?
			)`, docID, kg.VectorTypeChunk); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_entries WHERE vector_rowid IN (
				SELECT rowid FROM vectors WHERE document_id = ?
			)`, docID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vectors WHERE document_id = ?", docID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM document_status WHERE doc_id = ?", docID); err != nil {
			return err
		}
		return nil
	})
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// accumulateDescription merges a new description onto a stored one
// using the same containment-then-append rule applied at batch level.
func accumulateDescription(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" || strings.Contains(existing, next) {
		return existing
	}
	if existing == "" {
		return next
	}
	candidate := existing + descSeparator + next
	if r := []rune(candidate); len(r) > descMaxLen {
		candidate = string(r[:descMaxLen-3]) + "..."
	}
	return candidate
}

// mergeSourceIDs unions a stored JSON id array with incoming ids,
// preserving the bounded-set semantics.
func mergeSourceIDs(existingJSON string, incoming kg.SourceIDs) string {
	var merged kg.SourceIDs
	if existingJSON != "" {
		var ids []string
		if err := json.Unmarshal([]byte(existingJSON), &ids); err == nil {
			merged.AddAll(ids)
		}
	}
	merged.AddAll(incoming.IDs())
	data, _ := json.Marshal(&merged)
	return string(data)
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
