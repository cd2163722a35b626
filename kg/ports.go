package kg

import "context"

// GraphStore persists entities and relations, isolated per project.
// Entity identity is (projectID, name); upserts are idempotent.
type GraphStore interface {
	UpsertEntities(ctx context.Context, projectID string, entities []Entity) error
	UpsertRelations(ctx context.Context, projectID string, relations []Relation) error
}

// VectorStore holds fixed-dimension embeddings. Upsert is idempotent
// by entry id.
type VectorStore interface {
	UpsertBatch(ctx context.Context, entries []VectorEntry) error
	Search(ctx context.Context, vector []float32, k int) ([]VectorMatch, error)
}

// ChunkStore is the key-value store for raw chunk text.
type ChunkStore interface {
	Set(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (string, error)
}

// StatusStore tracks document ingestion status. Get returns (nil, nil)
// when no status row exists for the document.
type StatusStore interface {
	Get(ctx context.Context, docID string) (*DocumentStatus, error)
	Set(ctx context.Context, status DocumentStatus) error
	List(ctx context.Context) ([]DocumentStatus, error)
	Delete(ctx context.Context, docID string) error
}

// ExtractionCache memoises LLM results across chunks and documents
// within a project. Concurrent stores of the same key must converge;
// the cache is an optimisation, never required for correctness.
type ExtractionCache interface {
	Get(ctx context.Context, projectID, cacheType, contentHash string) (string, bool, error)
	Store(ctx context.Context, entry CacheEntry) error
}
