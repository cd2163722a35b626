package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/graphloom/graphloom/kg"
	"github.com/graphloom/graphloom/llm"
)

// Config controls extraction behaviour.
type Config struct {
	EntityTypes       []string // Allowed entity types offered to the model.
	Language          string   // Output language. Default "English".
	GleaningEnabled   bool     // Run follow-up passes for missed records.
	GleaningMaxPasses int      // Number of gleaning passes (0..5).
	NameMaxLen        int      // Entity name bound. Default 500.
	DescMaxLen        int      // Description bound. Default 1000.
	MaxTokens         int      // Completion token budget per LLM call.
	EnableCache       bool     // Consult the extraction cache when wired.
	MaxSourceIDs      int      // Source chunk ids kept per record. Default kg.MaxSourceIDs.
}

// maxGleaningPasses caps the configured pass count.
const maxGleaningPasses = 5

// DefaultEntityTypes is the type list used when none is configured.
var DefaultEntityTypes = []string{"PERSON", "ORGANIZATION", "LOCATION", "EVENT", "CONCEPT"}

// Extractor runs per-chunk LLM extraction with optional gleaning.
// A nil cache disables memoisation.
type Extractor struct {
	chat  llm.Provider
	cache kg.ExtractionCache
	cfg   Config
}

// New returns an Extractor. Zero-value config fields get defaults.
func New(chat llm.Provider, cache kg.ExtractionCache, cfg Config) *Extractor {
	if len(cfg.EntityTypes) == 0 {
		cfg.EntityTypes = DefaultEntityTypes
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.GleaningMaxPasses < 0 {
		cfg.GleaningMaxPasses = 0
	}
	if cfg.GleaningMaxPasses > maxGleaningPasses {
		cfg.GleaningMaxPasses = maxGleaningPasses
	}
	return &Extractor{chat: chat, cache: cache, cfg: cfg}
}

// Extract turns one chunk into entities and relations. It never fails:
// an LLM error on the initial pass yields an empty result, an error in
// a gleaning pass returns whatever has accumulated, and both are logged
// rather than propagated so one bad chunk cannot abort its batch.
func (x *Extractor) Extract(ctx context.Context, projectID string, chunk kg.Chunk) Result {
	opts := ParseOptions{NameMaxLen: x.cfg.NameMaxLen, DescMaxLen: x.cfg.DescMaxLen}

	system := renderPrompt(extractionSystemPrompt, promptVars{
		entityTypes: strings.Join(x.cfg.EntityTypes, ", "),
		language:    x.cfg.Language,
		inputText:   chunk.Content,
	})

	start := time.Now()
	response, err := x.callLLM(ctx, projectID, kg.CacheEntityExtraction, chunk.ChunkID, extractionUserPrompt, system)
	if err != nil {
		slog.Warn("extract: llm call failed, returning empty result",
			"chunk_id", chunk.ChunkID, "error", err)
		return Result{}
	}

	acc := newAccumulator()
	acc.merge(Parse(response, opts))

	if x.cfg.GleaningEnabled && x.cfg.GleaningMaxPasses > 0 {
		x.glean(ctx, projectID, chunk, response, opts, acc)
	}

	res := acc.result()
	x.attachProvenance(&res, chunk)

	slog.Debug("extract: chunk complete",
		"chunk_id", chunk.ChunkID,
		"entities", len(res.Entities), "relations", len(res.Relations),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res
}

// glean runs follow-up passes, each re-prompting with the previous
// response, until a pass contributes nothing new or the pass budget is
// spent. A failed pass keeps the accumulated result.
func (x *Extractor) glean(ctx context.Context, projectID string, chunk kg.Chunk, previous string, opts ParseOptions, acc *accumulator) {
	for pass := 1; pass <= x.cfg.GleaningMaxPasses; pass++ {
		system := renderPrompt(gleaningSystemPrompt, promptVars{
			entityTypes:      strings.Join(x.cfg.EntityTypes, ", "),
			language:         x.cfg.Language,
			inputText:        chunk.Content,
			previousResponse: previous,
		})

		response, err := x.callLLM(ctx, projectID, kg.CacheGleaning, chunk.ChunkID, gleaningUserPrompt, system)
		if err != nil {
			slog.Warn("extract: gleaning pass failed, keeping accumulated result",
				"chunk_id", chunk.ChunkID, "pass", pass, "error", err)
			return
		}

		newEntities, newRelations := acc.merge(Parse(response, opts))
		if newEntities == 0 && newRelations == 0 {
			slog.Debug("extract: gleaning converged",
				"chunk_id", chunk.ChunkID, "pass", pass)
			return
		}
		slog.Debug("extract: gleaning pass added records",
			"chunk_id", chunk.ChunkID, "pass", pass,
			"new_entities", newEntities, "new_relations", newRelations)
		previous = response
	}
}

// callLLM issues one chat call, memoised through the extraction cache
// when one is wired. Cache failures are ignored; the cache is an
// optimisation only.
func (x *Extractor) callLLM(ctx context.Context, projectID, cacheType, chunkID, user, system string) (string, error) {
	var hash string
	if x.cache != nil && x.cfg.EnableCache {
		hash = contentHash(system, user)
		if cached, ok, err := x.cache.Get(ctx, projectID, cacheType, hash); err != nil {
			slog.Debug("extract: cache lookup failed", "cache_type", cacheType, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	resp, err := x.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.0,
		MaxTokens:   x.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	if hash != "" {
		if err := x.cache.Store(ctx, kg.CacheEntry{
			ProjectID:   projectID,
			CacheType:   cacheType,
			ChunkID:     chunkID,
			ContentHash: hash,
			Result:      resp.Content,
			TokensUsed:  resp.TotalTokens,
		}); err != nil {
			slog.Debug("extract: cache store failed", "cache_type", cacheType, "error", err)
		}
	}
	return resp.Content, nil
}

// attachProvenance records the originating chunk and document on every
// accumulated entity and relation. Source-id sets are created here with
// the configured bound so downstream merges inherit it.
func (x *Extractor) attachProvenance(res *Result, chunk kg.Chunk) {
	for i := range res.Entities {
		ids := kg.NewSourceIDs(x.cfg.MaxSourceIDs)
		ids.Add(chunk.ChunkID)
		res.Entities[i].SourceIDs = ids
		res.Entities[i].DocumentID = chunk.SourceDocID
	}
	for i := range res.Relations {
		ids := kg.NewSourceIDs(x.cfg.MaxSourceIDs)
		ids.Add(chunk.ChunkID)
		res.Relations[i].SourceIDs = ids
	}
}

// contentHash is the SHA-256 hex digest of the full prompt input.
func contentHash(system, user string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil))
}

// ---------------------------------------------------------------------------
// Cross-pass accumulation. Entities dedup by lowercased name, relations
// by the lowercased src->tgt key; on collision the record with the
// longer description wins, preferring richer text over first-seen.
// ---------------------------------------------------------------------------

type accumulator struct {
	entities  []kg.Entity
	entityIdx map[string]int
	relations []kg.Relation
	relIdx    map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{
		entityIdx: make(map[string]int),
		relIdx:    make(map[string]int),
	}
}

// merge unions r into the accumulator and reports how many entities and
// relations were previously unseen.
func (a *accumulator) merge(r Result) (newEntities, newRelations int) {
	for _, e := range r.Entities {
		key := strings.ToLower(e.Name)
		if idx, ok := a.entityIdx[key]; ok {
			if len(e.Description) > len(a.entities[idx].Description) {
				a.entities[idx] = e
			}
			continue
		}
		a.entityIdx[key] = len(a.entities)
		a.entities = append(a.entities, e)
		newEntities++
	}
	for _, rel := range r.Relations {
		key := strings.ToLower(rel.SrcName) + "->" + strings.ToLower(rel.TgtName)
		if idx, ok := a.relIdx[key]; ok {
			if len(rel.Description) > len(a.relations[idx].Description) {
				a.relations[idx] = rel
			}
			continue
		}
		a.relIdx[key] = len(a.relations)
		a.relations = append(a.relations, rel)
		newRelations++
	}
	return newEntities, newRelations
}

func (a *accumulator) result() Result {
	return Result{Entities: a.entities, Relations: a.relations}
}
