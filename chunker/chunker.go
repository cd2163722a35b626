// Package chunker splits raw document text into token-bounded,
// overlapping chunks. Token counting is pluggable; the default is a
// deterministic whitespace tokenizer whose count is monotonic in text
// length, which is all the pipeline relies on.
package chunker

import (
	"strings"

	"github.com/graphloom/graphloom/kg"
)

// Tokenizer converts text to a token sequence. Implementations must be
// deterministic and monotonic: longer text never yields fewer tokens.
type Tokenizer interface {
	Tokenize(text string) []string
	Count(text string) int
}

// WordTokenizer splits on Unicode whitespace. It round-trips exactly
// under single-space joining, which gives the chunker its exact-overlap
// guarantee.
type WordTokenizer struct{}

// Tokenize splits text into whitespace-delimited tokens.
func (WordTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

// Count returns the number of whitespace-delimited tokens.
func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// Config controls the chunking behaviour.
type Config struct {
	ChunkSize int       // Maximum tokens per chunk.
	Overlap   int       // Tokens shared between consecutive chunks.
	Tokenizer Tokenizer // Defaults to WordTokenizer.
}

// Chunker converts document text into store-ready chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = 100
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 4
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = WordTokenizer{}
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits text into ordered chunks of at most ChunkSize tokens
// where consecutive chunks share exactly Overlap tokens. Empty or
// whitespace-only input yields no chunks. Chunk ids and the source
// document id are assigned by the caller.
func (c *Chunker) Chunk(text string) []kg.Chunk {
	tokens := c.cfg.Tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	stride := c.cfg.ChunkSize - c.cfg.Overlap

	var chunks []kg.Chunk
	for start := 0; ; start += stride {
		end := start + c.cfg.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, kg.Chunk{
			Index:      len(chunks),
			Content:    strings.Join(window, " "),
			TokenCount: len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// ChunkSize returns the configured maximum tokens per chunk.
func (c *Chunker) ChunkSize() int { return c.cfg.ChunkSize }

// Overlap returns the configured token overlap.
func (c *Chunker) Overlap() int { return c.cfg.Overlap }
