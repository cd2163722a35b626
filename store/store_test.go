package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/graphloom/graphloom/kg"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Get(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		t.Fatalf("expected nil status for unknown doc, got %+v", st)
	}

	if err := s.Set(ctx, kg.DocumentStatus{DocID: "doc-1", Status: kg.StatusProcessing}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, kg.DocumentStatus{
		DocID: "doc-1", Status: kg.StatusCompleted,
		ChunkCount: 3, EntityCount: 7, RelationCount: 2,
	}); err != nil {
		t.Fatal(err)
	}

	st, err = s.Get(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.Status != kg.StatusCompleted {
		t.Fatalf("status = %+v", st)
	}
	if st.ChunkCount != 3 || st.EntityCount != 7 || st.RelationCount != 2 {
		t.Errorf("counts = %+v", st)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	st, err = s.Get(ctx, "doc-1")
	if err != nil || st != nil {
		t.Fatalf("after delete: status = %+v, err = %v", st, err)
	}
}

func TestStatusFailedKeepsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, kg.DocumentStatus{
		DocID: "doc-err", Status: kg.StatusFailed, ErrorMessage: "llm unreachable",
	}); err != nil {
		t.Fatal(err)
	}
	st, err := s.Get(ctx, "doc-err")
	if err != nil {
		t.Fatal(err)
	}
	if st.ErrorMessage != "llm unreachable" {
		t.Errorf("error message = %q", st.ErrorMessage)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunks := s.Chunks()

	if err := chunks.Set(ctx, "chunk-1", "hello world"); err != nil {
		t.Fatal(err)
	}
	got, err := chunks.Get(ctx, "chunk-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("content = %q", got)
	}

	if _, err := chunks.Get(ctx, "missing"); err == nil {
		t.Error("expected error for missing chunk")
	}
}

func TestUpsertEntitiesAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := kg.Entity{Name: "Go", Type: "TECHNOLOGY", Description: "a compiled language"}
	e1.SourceIDs.Add("chunk-1")
	if err := s.UpsertEntities(ctx, "proj", []kg.Entity{e1}); err != nil {
		t.Fatal(err)
	}

	// Second batch: same name, new description text and provenance.
	e2 := kg.Entity{Name: "Go", Type: "TECHNOLOGY", Description: "designed at Google"}
	e2.SourceIDs.Add("chunk-2")
	if err := s.UpsertEntities(ctx, "proj", []kg.Entity{e2}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEntity(ctx, "proj", "Go")
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "a compiled language | designed at Google" {
		t.Errorf("description = %q", got.Description)
	}
	if !got.SourceIDs.Contains("chunk-1") || !got.SourceIDs.Contains("chunk-2") {
		t.Errorf("source ids = %v", got.SourceIDs.IDs())
	}

	// Contained text is not appended again.
	if err := s.UpsertEntities(ctx, "proj", []kg.Entity{
		{Name: "Go", Description: "designed at Google"},
	}); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetEntity(ctx, "proj", "Go")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(got.Description, "designed at Google") != 1 {
		t.Errorf("description repeated text: %q", got.Description)
	}
}

func TestEntitiesProjectIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntities(ctx, "proj-a", []kg.Entity{{Name: "X", Description: "in a"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntities(ctx, "proj-b", []kg.Entity{{Name: "X", Description: "in b"}}); err != nil {
		t.Fatal(err)
	}

	a, err := s.GetEntity(ctx, "proj-a", "X")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GetEntity(ctx, "proj-b", "X")
	if err != nil {
		t.Fatal(err)
	}
	if a.Description != "in a" || b.Description != "in b" {
		t.Errorf("isolation broken: a=%q b=%q", a.Description, b.Description)
	}

	n, err := s.CountEntities(ctx, "proj-a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestUpsertRelationsAccumulatesWeight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := kg.Relation{SrcName: "A", TgtName: "B", Description: "works with", Weight: 1}
	if err := s.UpsertRelations(ctx, "proj", []kg.Relation{r}); err != nil {
		t.Fatal(err)
	}
	r2 := kg.Relation{SrcName: "A", TgtName: "B", Description: "collaborates daily", Weight: 2}
	if err := s.UpsertRelations(ctx, "proj", []kg.Relation{r2}); err != nil {
		t.Fatal(err)
	}

	var weight float64
	var desc string
	err := s.db.QueryRowContext(ctx,
		"SELECT weight, description FROM relations WHERE project_id = ? AND src_name = ? AND tgt_name = ?",
		"proj", "A", "B").Scan(&weight, &desc)
	if err != nil {
		t.Fatal(err)
	}
	if weight != 3 {
		t.Errorf("weight = %v, want 3", weight)
	}
	if desc != "works with | collaborates daily" {
		t.Errorf("description = %q", desc)
	}
}

func TestVectorUpsertAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []kg.VectorEntry{
		{ID: "v1", Vector: []float32{1, 0, 0, 0}, Metadata: kg.VectorMetadata{
			Type: kg.VectorTypeChunk, Content: "first", DocumentID: "doc-1", ChunkIndex: 0, ProjectID: "proj"}},
		{ID: "v2", Vector: []float32{0, 1, 0, 0}, Metadata: kg.VectorMetadata{
			Type: kg.VectorTypeChunk, Content: "second", DocumentID: "doc-1", ChunkIndex: 1, ProjectID: "proj"}},
	}
	if err := s.UpsertBatch(ctx, entries); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Entry.ID != "v1" {
		t.Errorf("nearest = %q, want v1", matches[0].Entry.ID)
	}
	if matches[0].Entry.Metadata.Content != "first" {
		t.Errorf("metadata = %+v", matches[0].Entry.Metadata)
	}

	// Re-upserting the same id must update in place, not duplicate.
	entries[0].Vector = []float32{0, 0, 1, 0}
	if err := s.UpsertBatch(ctx, entries[:1]); err != nil {
		t.Fatal(err)
	}
	matches, err = s.Search(ctx, []float32{0, 0, 1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Entry.ID != "v1" {
		t.Errorf("nearest after update = %q", matches[0].Entry.ID)
	}
}

func TestExtractionCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache()

	_, ok, err := cache.Get(ctx, "proj", kg.CacheEntityExtraction, "hash-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("unexpected cache hit")
	}

	entry := kg.CacheEntry{
		ProjectID: "proj", CacheType: kg.CacheEntityExtraction,
		ContentHash: "hash-1", Result: "entity<|>A<|>ORG<|>desc", TokensUsed: 42,
	}
	if err := cache.Store(ctx, entry); err != nil {
		t.Fatal(err)
	}
	// Overwriting the same key converges.
	entry.Result = "entity<|>A<|>ORG<|>better desc"
	if err := cache.Store(ctx, entry); err != nil {
		t.Fatal(err)
	}

	got, ok, err := cache.Get(ctx, "proj", kg.CacheEntityExtraction, "hash-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got != "entity<|>A<|>ORG<|>better desc" {
		t.Errorf("cache value = %q, ok = %v", got, ok)
	}
}

func TestPurgeDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, kg.DocumentStatus{DocID: "doc-1", Status: kg.StatusCompleted}); err != nil {
		t.Fatal(err)
	}
	if err := s.Chunks().Set(ctx, "chunk-1", "text"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertBatch(ctx, []kg.VectorEntry{
		{ID: "chunk-1", Vector: []float32{1, 0, 0, 0}, Metadata: kg.VectorMetadata{
			Type: kg.VectorTypeChunk, DocumentID: "doc-1"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntities(ctx, "proj", []kg.Entity{{Name: "Kept", Description: "survives purge"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.PurgeDocument(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}

	st, err := s.Get(ctx, "doc-1")
	if err != nil || st != nil {
		t.Errorf("status after purge = %+v, err = %v", st, err)
	}
	if _, err := s.Chunks().Get(ctx, "chunk-1"); err == nil {
		t.Error("chunk survived purge")
	}
	if _, err := s.GetEntity(ctx, "proj", "Kept"); err != nil {
		t.Errorf("project entity must survive document purge: %v", err)
	}
}

func TestAccumulateDescriptionCap(t *testing.T) {
	long := strings.Repeat("a", 600)
	next := strings.Repeat("b", 600)
	got := accumulateDescription(long, next)
	if len(got) != descMaxLen {
		t.Errorf("len = %d, want %d", len(got), descMaxLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipsis: %q", got[len(got)-10:])
	}
}
