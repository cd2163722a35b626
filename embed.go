package graphloom

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graphloom/graphloom/kg"
)

// maxEmbedChars is the maximum character length for a single text sent
// to the embedding model. Most embedding models have a context window
// of 8192 tokens; ~24000 chars leaves headroom for varied tokenisers.
const maxEmbedChars = 24000

// truncateForEmbed truncates text to maxEmbedChars on a word boundary.
func truncateForEmbed(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	cut := strings.LastIndex(text[:maxEmbedChars], " ")
	if cut <= 0 {
		cut = maxEmbedChars
	}
	return text[:cut]
}

// embedChunks stores chunk text and generates embeddings in fixed-size
// batches. A failed batch falls back to per-text embedding so a single
// oversized text does not lose the whole batch. The collected vectors
// are upserted in one bulk write only after every batch has completed.
func (e *engine) embedChunks(ctx context.Context, projectID, documentID string, chunks []kg.Chunk) error {
	batchSize := e.cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	for _, chunk := range chunks {
		if err := e.chunks.Set(ctx, chunk.ChunkID, chunk.Content); err != nil {
			return fmt.Errorf("storing chunk %s: %w", chunk.ChunkID, err)
		}
	}

	entries := make([]kg.VectorEntry, 0, len(chunks))
	var failed int

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = truncateForEmbed(chunks[j].Content)
		}

		vectors, err := e.embedLLM.Embed(ctx, texts)
		if err != nil {
			// Batch failed — embed each text individually so one bad
			// input doesn't lose its neighbours.
			slog.Warn("embedding batch failed, falling back to individual",
				"batch_start", i, "batch_end", end, "error", err)
			for j, text := range texts {
				single, serr := e.embedLLM.Embed(ctx, []string{text})
				if serr != nil || len(single) == 0 || len(single[0]) == 0 {
					slog.Warn("embedding single chunk failed",
						"chunk_id", chunks[i+j].ChunkID, "error", serr)
					failed++
					continue
				}
				entries = append(entries, chunkVectorEntry(chunks[i+j], single[0], projectID, documentID))
			}
			continue
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}

		for j, vec := range vectors {
			entries = append(entries, chunkVectorEntry(chunks[i+j], vec, projectID, documentID))
		}
	}

	if failed == len(chunks) {
		return fmt.Errorf("all %d chunks failed embedding", len(chunks))
	}
	if failed > 0 {
		slog.Warn("some chunk embeddings failed", "failed", failed, "total", len(chunks))
	}

	if err := e.vectors.UpsertBatch(ctx, entries); err != nil {
		return fmt.Errorf("upserting %d chunk vectors: %w", len(entries), err)
	}
	return nil
}

func chunkVectorEntry(chunk kg.Chunk, vector []float32, projectID, documentID string) kg.VectorEntry {
	return kg.VectorEntry{
		ID:     chunk.ChunkID,
		Vector: vector,
		Metadata: kg.VectorMetadata{
			Type:       kg.VectorTypeChunk,
			Content:    chunk.Content,
			ChunkIndex: chunk.Index,
			ProjectID:  projectID,
			DocumentID: documentID,
		},
	}
}
