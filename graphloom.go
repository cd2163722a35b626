// Package graphloom ingests documents into a project-scoped knowledge
// graph: text is chunked, embedded, mined for entities and relations
// via an LLM, deduplicated, and persisted through pluggable storage
// ports.
package graphloom

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graphloom/graphloom/chunker"
	"github.com/graphloom/graphloom/extract"
	"github.com/graphloom/graphloom/kg"
	"github.com/graphloom/graphloom/llm"
	"github.com/graphloom/graphloom/parser"
	"github.com/graphloom/graphloom/persist"
	"github.com/graphloom/graphloom/resolve"
	"github.com/graphloom/graphloom/store"
)

// Engine is the main entry point for the ingestion pipeline.
type Engine interface {
	// Ingest runs a document through the full pipeline: chunk, embed,
	// extract, persist. Returns the document ID. Documents already
	// COMPLETED or currently PROCESSING are skipped.
	Ingest(ctx context.Context, doc kg.Document) (string, error)

	// IngestFile parses a file from disk and ingests the resulting
	// text. The document ID is derived from the file content hash so
	// unchanged files are skipped on re-ingest.
	IngestFile(ctx context.Context, path string, metadata map[string]string) (string, error)

	// Status returns the lifecycle record for a document.
	Status(ctx context.Context, docID string) (*kg.DocumentStatus, error)

	// ListDocuments returns the status of every known document.
	ListDocuments(ctx context.Context) ([]kg.DocumentStatus, error)

	// Delete removes a document and all associated data.
	Delete(ctx context.Context, docID string) error

	// Close cleanly shuts down the engine.
	Close() error
}

// documentPurger removes every trace of a document from storage.
// Backends that cannot purge fall back to deleting the status row only.
type documentPurger interface {
	PurgeDocument(ctx context.Context, docID string) error
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	status    kg.StatusStore
	chunks    kg.ChunkStore
	vectors   kg.VectorStore
	embedLLM  llm.Provider
	chunkr    *chunker.Chunker
	extractor *extract.Extractor
	persister *persist.Persister
	parsers   *parser.Registry
	purger    documentPurger
	closer    io.Closer

	// cacheCloser is set when the extraction cache holds its own
	// connection (Redis); nil when the cache lives inside the store.
	cacheCloser io.Closer
}

// New creates an engine with the given configuration, backed by the
// bundled SQLite store.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config(cfg.Chat))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}
	embedLLM, err := llm.NewProvider(llm.Config(cfg.Embedding))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	cache := s.Cache()
	var cacheCloser io.Closer
	if cfg.Redis.Addr != "" {
		rc := store.NewRedisCache(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = rc
		cacheCloser = rc
	}

	var resolver *resolve.Resolver
	if cfg.Resolution.Enabled {
		resolver, err = resolve.New(cfg.Resolution)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating entity resolver: %w", err)
		}
	}

	extractor := extract.New(chatLLM, cache, extract.Config{
		EntityTypes:       cfg.EntityTypes,
		Language:          cfg.Language,
		GleaningEnabled:   cfg.GleaningEnabled,
		GleaningMaxPasses: cfg.GleaningMaxPasses,
		NameMaxLen:        cfg.EntityNameMaxLen,
		DescMaxLen:        cfg.DescriptionMaxLen,
		MaxTokens:         cfg.MaxTokens,
		EnableCache:       cfg.EnableCache,
		MaxSourceIDs:      cfg.MaxSourceIDs,
	})

	persister := persist.New(s, s, embedLLM, resolver, persist.Config{
		Separator:  cfg.DescriptionSeparator,
		DescMaxLen: cfg.DescriptionMaxLen,
	})

	return &engine{
		cfg:         cfg,
		status:      s,
		chunks:      s.Chunks(),
		vectors:     s,
		embedLLM:    embedLLM,
		chunkr:      chunker.New(chunker.Config{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}),
		extractor:   extractor,
		persister:   persister,
		parsers:     parser.NewRegistry(),
		purger:      s,
		closer:      s,
		cacheCloser: cacheCloser,
	}, nil
}

// Ingest processes a document through the full pipeline.
func (e *engine) Ingest(ctx context.Context, doc kg.Document) (string, error) {
	docID := doc.ID
	if docID == "" {
		docID = uuid.NewString()
	}
	projectID := doc.ProjectID()
	if projectID == "" {
		return "", ErrProjectIDRequired
	}

	// Idempotency gate: completed documents are done, processing
	// documents have exactly one in-flight ingest already.
	existing, err := e.status.Get(ctx, docID)
	if err != nil {
		return "", fmt.Errorf("reading document status: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case kg.StatusCompleted:
			slog.Info("ingest: document already completed, skipping", "doc_id", docID)
			return docID, nil
		case kg.StatusProcessing:
			slog.Info("ingest: document already processing, skipping", "doc_id", docID)
			return docID, nil
		}
	}

	if err := e.status.Set(ctx, kg.DocumentStatus{
		DocID:       docID,
		FilePath:    doc.Metadata[kg.MetaFilePath],
		ContentHash: contentHash(doc.Content),
		Status:      kg.StatusProcessing,
	}); err != nil {
		return "", fmt.Errorf("marking document processing: %w", err)
	}

	counts, err := e.runPipeline(ctx, docID, projectID, doc)
	if err != nil {
		if serr := e.status.Set(ctx, kg.DocumentStatus{
			DocID:        docID,
			FilePath:     doc.Metadata[kg.MetaFilePath],
			ContentHash:  contentHash(doc.Content),
			Status:       kg.StatusFailed,
			ErrorMessage: err.Error(),
		}); serr != nil {
			slog.Error("ingest: failed to record FAILED status",
				"doc_id", docID, "status_error", serr, "original_error", err)
		}
		return docID, err
	}

	if err := e.status.Set(ctx, kg.DocumentStatus{
		DocID:         docID,
		FilePath:      doc.Metadata[kg.MetaFilePath],
		ContentHash:   contentHash(doc.Content),
		Status:        kg.StatusCompleted,
		ChunkCount:    counts.chunks,
		EntityCount:   counts.entities,
		RelationCount: counts.relations,
	}); err != nil {
		return docID, fmt.Errorf("marking document completed: %w", err)
	}
	return docID, nil
}

// pipelineCounts are the cumulative per-document totals reported on the
// COMPLETED status row.
type pipelineCounts struct {
	chunks    int
	entities  int
	relations int
}

// runPipeline executes chunking, embedding, and batched extraction and
// persistence for one document.
func (e *engine) runPipeline(ctx context.Context, docID, projectID string, doc kg.Document) (pipelineCounts, error) {
	start := time.Now()

	chunks := e.chunkr.Chunk(doc.Content)
	for i := range chunks {
		chunks[i].ChunkID = kg.NewChunkID()
		chunks[i].SourceDocID = docID
	}
	slog.Info("ingest: chunking complete",
		"doc_id", docID, "chunks", len(chunks),
		"chunk_size", e.chunkr.ChunkSize(), "overlap", e.chunkr.Overlap())

	counts := pipelineCounts{chunks: len(chunks)}
	if len(chunks) == 0 {
		return counts, nil
	}

	embedStart := time.Now()
	if err := e.embedChunks(ctx, projectID, docID, chunks); err != nil {
		return counts, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	slog.Info("ingest: embeddings complete",
		"doc_id", docID, "chunks", len(chunks),
		"elapsed", time.Since(embedStart).Round(time.Millisecond))

	kgStart := time.Now()
	if err := e.extractAndPersist(ctx, docID, projectID, doc, chunks, &counts); err != nil {
		return counts, err
	}
	slog.Info("ingest: knowledge graph complete",
		"doc_id", docID,
		"entities", counts.entities, "relations", counts.relations,
		"elapsed", time.Since(kgStart).Round(time.Millisecond))

	slog.Info("ingest: document ready",
		"doc_id", docID, "chunks", counts.chunks,
		"total_elapsed", time.Since(start).Round(time.Millisecond))
	return counts, nil
}

// extractAndPersist walks the chunks in KG batches: every chunk in a
// batch is extracted in parallel, the batch output is persisted, and
// only then does the next batch begin. Persisting as we go bounds
// in-flight memory to one batch and keeps completed batches durable
// even when a later batch fails.
func (e *engine) extractAndPersist(ctx context.Context, docID, projectID string, doc kg.Document, chunks []kg.Chunk, counts *pipelineCounts) error {
	batchSize := e.cfg.KGExtractionBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	workers := e.cfg.ExtractionWorkers
	if workers <= 0 {
		workers = 4
	}
	documentID := doc.Metadata[kg.MetaDocumentID]
	if documentID == "" {
		documentID = docID
	}

	sem := make(chan struct{}, workers)
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		var (
			mu        sync.Mutex
			entities  []kg.Entity
			relations []kg.Relation
			wg        sync.WaitGroup
		)
		for _, chunk := range batch {
			wg.Add(1)
			go func(chunk kg.Chunk) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}
				// Extraction never fails; a broken chunk degrades to an
				// empty result inside the extractor.
				res := e.extractor.Extract(ctx, projectID, chunk)
				mu.Lock()
				entities = append(entities, res.Entities...)
				relations = append(relations, res.Relations...)
				mu.Unlock()
			}(chunk)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := e.persister.Persist(ctx, projectID, documentID, entities, relations)
		if err != nil {
			return fmt.Errorf("persisting batch %d-%d: %w", i, end, err)
		}
		counts.entities += stats.Entities
		counts.relations += stats.Relations

		slog.Debug("ingest: batch persisted",
			"doc_id", docID, "batch_start", i, "batch_end", end,
			"entities", stats.Entities, "relations", stats.Relations)
	}
	return nil
}

// IngestFile parses a file and ingests the extracted text.
func (e *engine) IngestFile(ctx context.Context, path string, metadata map[string]string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	p, err := e.parsers.Get(format)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	parseStart := time.Now()
	text, err := p.Parse(ctx, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	slog.Info("ingest: parsing complete",
		"file", filepath.Base(absPath), "format", format,
		"elapsed", time.Since(parseStart).Round(time.Millisecond))

	hash, err := fileHash(absPath)
	if err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[kg.MetaFilePath] = absPath

	return e.Ingest(ctx, kg.Document{
		ID:       hash,
		Content:  text,
		Metadata: meta,
	})
}

// Status returns the lifecycle record for a document.
func (e *engine) Status(ctx context.Context, docID string) (*kg.DocumentStatus, error) {
	st, err := e.status.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	return st, nil
}

// ListDocuments returns the status of every known document.
func (e *engine) ListDocuments(ctx context.Context) ([]kg.DocumentStatus, error) {
	return e.status.List(ctx)
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, docID string) error {
	if e.purger != nil {
		return e.purger.PurgeDocument(ctx, docID)
	}
	return e.status.Delete(ctx, docID)
}

// Close shuts down the engine, releasing the cache connection and the
// store.
func (e *engine) Close() error {
	var errs []error
	if e.cacheCloser != nil {
		errs = append(errs, e.cacheCloser.Close())
	}
	if e.closer != nil {
		errs = append(errs, e.closer.Close())
	}
	return errors.Join(errs...)
}

// contentHash is the SHA-256 hex digest of a document's text.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// fileHash computes the SHA-256 hex digest of a file's bytes.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
