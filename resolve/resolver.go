package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/graphloom/graphloom/kg"
)

// Config controls entity resolution.
type Config struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	Threshold       float64 `json:"threshold" yaml:"threshold"`
	Algorithm       string  `json:"algorithm" yaml:"algorithm"` // threshold or dbscan
	MinPts          int     `json:"min_pts" yaml:"min_pts"`     // dbscan only
	Weights         Weights `json:"weights" yaml:"weights"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size"` // above this, matrix build goes parallel
	ParallelEnabled bool    `json:"parallel_enabled" yaml:"parallel_enabled"`
	Workers         int     `json:"workers" yaml:"workers"`
	MaxAliases      int     `json:"max_aliases" yaml:"max_aliases"`
}

// DefaultConfig returns the standard resolution settings.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Threshold:       0.75,
		Algorithm:       AlgorithmThreshold,
		MinPts:          1,
		Weights:         DefaultWeights(),
		BatchSize:       200,
		ParallelEnabled: true,
		Workers:         4,
		MaxAliases:      5,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("resolution threshold must be in (0, 1], got %v", c.Threshold)
	}
	switch c.Algorithm {
	case AlgorithmThreshold, AlgorithmDBSCAN:
	default:
		return fmt.Errorf("unknown clustering algorithm: %q", c.Algorithm)
	}
	return c.Weights.Validate()
}

// Result is the outcome of one resolution pass.
type Result struct {
	Entities          []kg.Entity   `json:"-"`
	OriginalCount     int           `json:"original_count"`
	ResolvedCount     int           `json:"resolved_count"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	ClustersFound     int           `json:"clusters_found"`
	Duration          time.Duration `json:"duration"`
}

// DeduplicationRate is the fraction of input entities merged away.
func (r Result) DeduplicationRate() float64 {
	if r.OriginalCount == 0 {
		return 0
	}
	return float64(r.DuplicatesRemoved) / float64(r.OriginalCount)
}

// AvgTimePerEntity is the mean processing time per input entity.
func (r Result) AvgTimePerEntity() time.Duration {
	if r.OriginalCount == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.OriginalCount)
}

// Resolver merges near-duplicate entities.
type Resolver struct {
	cfg  Config
	calc *Calculator
}

// New creates a Resolver. The configuration is validated up front so a
// bad weight blend fails at construction rather than mid-pipeline.
func New(cfg Config) (*Resolver, error) {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmThreshold
	}
	if cfg.MinPts <= 0 {
		cfg.MinPts = 1
	}
	zero := Weights{}
	if cfg.Weights == zero {
		cfg.Weights = DefaultWeights()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.MaxAliases <= 0 {
		cfg.MaxAliases = DefaultConfig().MaxAliases
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, calc: NewCalculator(cfg.Weights)}, nil
}

// Resolve deduplicates the batch. Entities are first partitioned by
// type, then each partition is scored pairwise, clustered, and merged.
// The output order is deterministic: partitions in sorted key order,
// clusters by their lowest input index.
func (r *Resolver) Resolve(ctx context.Context, entities []kg.Entity) (Result, error) {
	start := time.Now()
	result := Result{OriginalCount: len(entities)}

	if len(entities) <= 1 {
		result.Entities = entities
		result.ResolvedCount = len(entities)
		result.ClustersFound = len(entities)
		result.Duration = time.Since(start)
		return result, nil
	}

	blocks := make(map[string][]int)
	for i, e := range entities {
		key := blockKey(e.Type)
		blocks[key] = append(blocks[key], i)
	}
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var resolved []kg.Entity
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		indices := blocks[key]
		block := make([]kg.Entity, len(indices))
		for i, idx := range indices {
			block[i] = entities[idx]
		}

		matrix := r.buildMatrix(ctx, block)
		var clusters [][]int
		if r.cfg.Algorithm == AlgorithmDBSCAN {
			clusters = clusterDBSCAN(matrix, r.cfg.Threshold, r.cfg.MinPts)
		} else {
			clusters = clusterThreshold(matrix, r.cfg.Threshold)
		}
		sort.Slice(clusters, func(a, b int) bool {
			return minIndex(clusters[a]) < minIndex(clusters[b])
		})

		result.ClustersFound += len(clusters)
		for _, cluster := range clusters {
			resolved = append(resolved, r.merge(block, cluster))
		}
	}

	result.Entities = resolved
	result.ResolvedCount = len(resolved)
	result.DuplicatesRemoved = result.OriginalCount - result.ResolvedCount
	result.Duration = time.Since(start)

	slog.Debug("entity resolution complete",
		"original", result.OriginalCount,
		"resolved", result.ResolvedCount,
		"removed", result.DuplicatesRemoved,
		"clusters", result.ClustersFound,
		"elapsed", result.Duration.Round(time.Millisecond))
	return result, nil
}

// buildMatrix computes the symmetric pairwise similarity matrix for one
// type block. Small blocks are scored sequentially; large ones fan the
// upper-triangle pairs out across a fixed worker pool.
func (r *Resolver) buildMatrix(ctx context.Context, block []kg.Entity) [][]float64 {
	n := len(block)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	type pair struct{ i, j int }

	score := func(p pair) {
		s := r.calc.Compare(block[p.i].Name, block[p.i].Type, block[p.j].Name, block[p.j].Type)
		matrix[p.i][p.j] = s.Final
		matrix[p.j][p.i] = s.Final
	}

	if !r.cfg.ParallelEnabled || n <= r.cfg.BatchSize {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				score(pair{i, j})
			}
		}
		return matrix
	}

	pairs := make(chan pair)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range pairs {
				s := r.calc.Compare(block[p.i].Name, block[p.i].Type, block[p.j].Name, block[p.j].Type)
				mu.Lock()
				matrix[p.i][p.j] = s.Final
				matrix[p.j][p.i] = s.Final
				mu.Unlock()
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			select {
			case pairs <- pair{i, j}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(pairs)
	wg.Wait()
	return matrix
}

// merge collapses one cluster into a canonical entity. The longest name
// wins; the other member names become aliases; distinct descriptions
// are joined with " | "; source ids are unioned.
func (r *Resolver) merge(block []kg.Entity, cluster []int) kg.Entity {
	canonical := block[cluster[0]]
	for _, idx := range cluster[1:] {
		if len(block[idx].Name) > len(canonical.Name) {
			canonical = block[idx]
		}
	}

	merged := kg.Entity{
		Name:       canonical.Name,
		Type:       canonical.Type,
		FilePath:   canonical.FilePath,
		DocumentID: canonical.DocumentID,
	}

	var descriptions []string
	seenDesc := make(map[string]bool)
	seenAlias := make(map[string]bool)
	for _, idx := range cluster {
		e := block[idx]
		if d := strings.TrimSpace(e.Description); d != "" && !seenDesc[d] {
			seenDesc[d] = true
			descriptions = append(descriptions, d)
		}
		merged.SourceIDs.AddAll(e.SourceIDs.IDs())
		for _, alias := range append([]string{e.Name}, e.Aliases...) {
			if alias == merged.Name || seenAlias[alias] {
				continue
			}
			seenAlias[alias] = true
			if len(merged.Aliases) < r.cfg.MaxAliases {
				merged.Aliases = append(merged.Aliases, alias)
			}
		}
		if merged.FilePath == "" {
			merged.FilePath = e.FilePath
		}
		if merged.DocumentID == "" {
			merged.DocumentID = e.DocumentID
		}
	}

	if len(descriptions) == 0 {
		merged.Description = "No description available"
	} else {
		merged.Description = strings.Join(descriptions, " | ")
	}
	return merged
}

func minIndex(indices []int) int {
	m := indices[0]
	for _, v := range indices[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
