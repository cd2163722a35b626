// Package persist writes one batch of extracted entities and relations
// through the graph and vector ports. Writes are ordered: entities
// land before relations so relation endpoints never materialise as
// stub nodes, then relations and entity vectors proceed in parallel.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphloom/graphloom/kg"
	"github.com/graphloom/graphloom/llm"
	"github.com/graphloom/graphloom/resolve"
)

// ErrProjectIDRequired signals a caller bug: every persisted batch must
// be namespaced to a project.
var ErrProjectIDRequired = errors.New("persist: projectId is required")

// Default description accumulation settings.
const (
	DefaultSeparator  = " | "
	DefaultDescMaxLen = 1000
)

// Config controls description accumulation during exact-name dedup.
type Config struct {
	Separator  string `json:"separator" yaml:"separator"`
	DescMaxLen int    `json:"desc_max_len" yaml:"desc_max_len"`
}

// Stats reports what one batch wrote.
type Stats struct {
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// Persister writes extraction batches. The resolver is optional; when
// nil, only exact-name deduplication is applied.
type Persister struct {
	graph    kg.GraphStore
	vectors  kg.VectorStore
	embedder llm.Provider
	resolver *resolve.Resolver
	cfg      Config
}

// New creates a Persister. vectors and embedder may both be nil to skip
// entity embeddings; graph must be non-nil.
func New(graph kg.GraphStore, vectors kg.VectorStore, embedder llm.Provider, resolver *resolve.Resolver, cfg Config) *Persister {
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	if cfg.DescMaxLen <= 0 {
		cfg.DescMaxLen = DefaultDescMaxLen
	}
	return &Persister{
		graph:    graph,
		vectors:  vectors,
		embedder: embedder,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Persist deduplicates and writes one batch. The batch is durable only
// when every write succeeds; any failure aborts with an error and the
// caller fails the document.
func (p *Persister) Persist(ctx context.Context, projectID, documentID string, entities []kg.Entity, relations []kg.Relation) (Stats, error) {
	if strings.TrimSpace(projectID) == "" {
		return Stats{}, ErrProjectIDRequired
	}

	start := time.Now()

	if p.resolver != nil && len(entities) > 1 {
		res, err := p.resolver.Resolve(ctx, entities)
		if err != nil {
			slog.Warn("entity resolution failed, persisting unresolved batch",
				"project_id", projectID, "entities", len(entities), "error", err)
		} else {
			entities = res.Entities
		}
	}

	entities = p.dedupEntities(entities)
	relations = p.dedupRelations(relations)

	if err := p.graph.UpsertEntities(ctx, projectID, entities); err != nil {
		return Stats{}, fmt.Errorf("upserting %d entities: %w", len(entities), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.graph.UpsertRelations(gctx, projectID, relations); err != nil {
			return fmt.Errorf("upserting %d relations: %w", len(relations), err)
		}
		return nil
	})
	g.Go(func() error {
		return p.embedEntities(gctx, projectID, documentID, entities)
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	slog.Debug("batch persisted",
		"project_id", projectID,
		"entities", len(entities),
		"relations", len(relations),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return Stats{Entities: len(entities), Relations: len(relations)}, nil
}

// dedupEntities groups by exact name, accumulating descriptions and
// unioning source ids. First occurrence wins for type and provenance
// fields; output preserves first-seen order.
func (p *Persister) dedupEntities(entities []kg.Entity) []kg.Entity {
	byName := make(map[string]int)
	out := make([]kg.Entity, 0, len(entities))
	for _, e := range entities {
		idx, seen := byName[e.Name]
		if !seen {
			byName[e.Name] = len(out)
			out = append(out, e)
			continue
		}
		existing := &out[idx]
		existing.Description = p.mergeDescriptions(existing.Description, e.Description)
		existing.SourceIDs.AddAll(e.SourceIDs.IDs())
		for _, alias := range e.Aliases {
			existing.Aliases = appendUnique(existing.Aliases, alias)
		}
		if existing.Type == "" {
			existing.Type = e.Type
		}
	}
	return out
}

// dedupRelations groups by directed (src, tgt) key, accumulating
// descriptions, summing weights, and unioning source ids.
func (p *Persister) dedupRelations(relations []kg.Relation) []kg.Relation {
	byKey := make(map[string]int)
	out := make([]kg.Relation, 0, len(relations))
	for _, r := range relations {
		key := r.SrcName + "\x00" + r.TgtName
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, r)
			continue
		}
		existing := &out[idx]
		existing.Description = p.mergeDescriptions(existing.Description, r.Description)
		existing.Weight += r.Weight
		existing.SourceIDs.AddAll(r.SourceIDs.IDs())
		if existing.Keywords == "" {
			existing.Keywords = r.Keywords
		}
	}
	return out
}

// mergeDescriptions accumulates a new description onto an existing one.
// Repeated or contained text is dropped; otherwise the two are joined
// and the result is capped.
func (p *Persister) mergeDescriptions(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" || strings.Contains(existing, next) {
		return existing
	}
	if existing == "" {
		return next
	}
	candidate := existing + p.cfg.Separator + next
	if r := []rune(candidate); len(r) > p.cfg.DescMaxLen {
		candidate = string(r[:p.cfg.DescMaxLen-3]) + "..."
	}
	return candidate
}

// embedEntities writes one vector per deduplicated entity. Ids are
// deterministic per (project, name) so reingest updates rows in place.
func (p *Persister) embedEntities(ctx context.Context, projectID, documentID string, entities []kg.Entity) error {
	if p.vectors == nil || p.embedder == nil || len(entities) == 0 {
		return nil
	}

	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = e.Name + ": " + e.Description
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d entities: %w", len(entities), err)
	}
	if len(vectors) != len(entities) {
		return fmt.Errorf("embedder returned %d vectors for %d entities", len(vectors), len(entities))
	}

	entries := make([]kg.VectorEntry, len(entities))
	for i, e := range entities {
		entries[i] = kg.VectorEntry{
			ID:     kg.EntityVectorID(projectID, e.Name),
			Vector: vectors[i],
			Metadata: kg.VectorMetadata{
				Type:       kg.VectorTypeEntity,
				Content:    texts[i],
				ProjectID:  projectID,
				DocumentID: documentID,
			},
		}
	}
	if err := p.vectors.UpsertBatch(ctx, entries); err != nil {
		return fmt.Errorf("upserting %d entity vectors: %w", len(entries), err)
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
