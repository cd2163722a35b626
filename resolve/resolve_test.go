package resolve

import (
	"context"
	"strings"
	"testing"

	"github.com/graphloom/graphloom/kg"
)

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"exact sum", Weights{Jaccard: 0.25, Containment: 0.25, Edit: 0.25, Abbreviation: 0.25}, false},
		{"within tolerance", Weights{Jaccard: 0.355, Containment: 0.25, Edit: 0.30, Abbreviation: 0.10}, false},
		{"bad sum", Weights{Jaccard: 0.5, Containment: 0.5, Edit: 0.5, Abbreviation: 0.5}, true},
		{"negative", Weights{Jaccard: -0.1, Containment: 0.5, Edit: 0.5, Abbreviation: 0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompareAbbreviation(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	score := calc.Compare("MIT", "ORG", "Massachusetts Institute of Technology", "ORG")
	if score.Abbreviation != 1 {
		t.Errorf("Abbreviation = %v, want 1", score.Abbreviation)
	}
	if score.Final != 1 {
		t.Errorf("Final = %v, want 1 for exact initialism", score.Final)
	}
}

func TestCompareCrossTypeBlocks(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	score := calc.Compare("Apple", "ORGANIZATION", "Apple", "CONCEPT")
	if score.Final != 0 {
		t.Errorf("cross-type Final = %v, want 0", score.Final)
	}
}

func TestCompareSymmetry(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	pairs := [][2]string{
		{"Apple Inc", "Apple Incorporated"},
		{"machine learning", "deep learning"},
		{"NASA", "National Aeronautics and Space Administration"},
		{"Golang", "Go programming language"},
	}
	for _, p := range pairs {
		a := calc.Compare(p[0], "ORG", p[1], "ORG")
		b := calc.Compare(p[1], "ORG", p[0], "ORG")
		if a.Final != b.Final {
			t.Errorf("Compare(%q, %q) = %v but reversed = %v", p[0], p[1], a.Final, b.Final)
		}
	}
}

func TestCompareIdenticalNames(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	score := calc.Compare("Alan Turing", "PERSON", "Alan Turing", "PERSON")
	if score.Final != 1 {
		t.Errorf("identical names Final = %v, want 1", score.Final)
	}
}

func TestEarlyRejectLengthRatio(t *testing.T) {
	// Both long, length ratio above 5.
	n1 := normalize("abcdefghijk")
	n2 := normalize(strings.Repeat("abcdefghijk", 6))
	if !earlyReject(n1, n2) {
		t.Error("expected reject for extreme length ratio")
	}
}

func TestEarlyRejectShortNameBypass(t *testing.T) {
	if earlyReject("mit", "massachusetts institute of technology") {
		t.Error("short single-token name must bypass the reject filters")
	}
}

func TestClusterThresholdPartition(t *testing.T) {
	matrix := [][]float64{
		{1.0, 0.9, 0.1, 0.1},
		{0.9, 1.0, 0.1, 0.1},
		{0.1, 0.1, 1.0, 0.2},
		{0.1, 0.1, 0.2, 1.0},
	}
	clusters := clusterThreshold(matrix, 0.75)
	if len(clusters) != 3 {
		t.Fatalf("got %d clusters, want 3: %v", len(clusters), clusters)
	}

	seen := make(map[int]int)
	for _, c := range clusters {
		for _, idx := range c {
			seen[idx]++
		}
	}
	for i := 0; i < 4; i++ {
		if seen[i] != 1 {
			t.Errorf("index %d appears %d times, want exactly 1", i, seen[i])
		}
	}
}

func TestClusterTransitiveChain(t *testing.T) {
	// a~b and b~c but not a~c directly: all three land together.
	matrix := [][]float64{
		{1.0, 0.8, 0.1},
		{0.8, 1.0, 0.8},
		{0.1, 0.8, 1.0},
	}
	clusters := clusterThreshold(matrix, 0.75)
	if len(clusters) != 1 || len(clusters[0]) != 3 {
		t.Errorf("got %v, want a single cluster of three", clusters)
	}
}

func TestClusterDBSCANMinPtsOneMatchesComponents(t *testing.T) {
	matrix := [][]float64{
		{1.0, 0.9, 0.1, 0.1, 0.1},
		{0.9, 1.0, 0.8, 0.1, 0.1},
		{0.1, 0.8, 1.0, 0.1, 0.1},
		{0.1, 0.1, 0.1, 1.0, 0.1},
		{0.1, 0.1, 0.1, 0.1, 1.0},
	}
	a := clusterThreshold(matrix, 0.75)
	b := clusterDBSCAN(matrix, 0.75, 1)
	if len(a) != len(b) {
		t.Fatalf("threshold found %d clusters, dbscan(minPts=1) found %d", len(a), len(b))
	}
}

func TestResolveMergesAbbreviation(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	entities := []kg.Entity{
		{Name: "MIT", Type: "ORGANIZATION", Description: "school"},
		{Name: "Massachusetts Institute of Technology", Type: "ORGANIZATION", Description: "research university"},
	}
	result, err := r.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatal(err)
	}

	if result.ResolvedCount != 1 {
		t.Fatalf("ResolvedCount = %d, want 1 (entities: %+v)", result.ResolvedCount, result.Entities)
	}
	e := result.Entities[0]
	if e.Name != "Massachusetts Institute of Technology" {
		t.Errorf("canonical name = %q, want the longest member name", e.Name)
	}
	if len(e.Aliases) != 1 || e.Aliases[0] != "MIT" {
		t.Errorf("aliases = %v, want [MIT]", e.Aliases)
	}
	if e.Description != "school | research university" {
		t.Errorf("description = %q", e.Description)
	}
	if result.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", result.DuplicatesRemoved)
	}
}

func TestResolveKeepsDistinctEntities(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	entities := []kg.Entity{
		{Name: "Alan Turing", Type: "PERSON", Description: "mathematician"},
		{Name: "Grace Hopper", Type: "PERSON", Description: "computer scientist"},
		{Name: "COBOL", Type: "TECHNOLOGY", Description: "language"},
	}
	result, err := r.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatal(err)
	}
	if result.ResolvedCount != 3 {
		t.Errorf("ResolvedCount = %d, want 3: %+v", result.ResolvedCount, result.Entities)
	}
	if result.DuplicatesRemoved != 0 {
		t.Errorf("DuplicatesRemoved = %d, want 0", result.DuplicatesRemoved)
	}
}

func TestResolveMergesSourceIDs(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	e1 := kg.Entity{Name: "NASA", Type: "ORGANIZATION", Description: "space agency"}
	e1.SourceIDs.Add("chunk-1")
	e2 := kg.Entity{Name: "National Aeronautics and Space Administration", Type: "ORGANIZATION", Description: "space agency"}
	e2.SourceIDs.Add("chunk-2")

	result, err := r.Resolve(context.Background(), []kg.Entity{e1, e2})
	if err != nil {
		t.Fatal(err)
	}
	if result.ResolvedCount != 1 {
		t.Fatalf("ResolvedCount = %d, want 1", result.ResolvedCount)
	}
	merged := result.Entities[0]
	if !merged.SourceIDs.Contains("chunk-1") || !merged.SourceIDs.Contains("chunk-2") {
		t.Errorf("merged source ids = %v, want union", merged.SourceIDs.IDs())
	}
	// Identical descriptions collapse rather than repeating.
	if merged.Description != "space agency" {
		t.Errorf("description = %q, want single copy", merged.Description)
	}
}

func TestResolveAliasCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAliases = 2
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	entities := []kg.Entity{
		{Name: "International Business Machines", Type: "ORG", Description: "d"},
		{Name: "IBM", Type: "ORG", Description: "d"},
		{Name: "I.B.M.", Type: "ORG", Description: "d"},
		{Name: "IBM.", Type: "ORG", Description: "d"},
	}
	result, err := r.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatal(err)
	}
	if result.ResolvedCount != 1 {
		t.Fatalf("ResolvedCount = %d, want 1: %+v", result.ResolvedCount, result.Entities)
	}
	e := result.Entities[0]
	if e.Name != "International Business Machines" {
		t.Errorf("canonical name = %q", e.Name)
	}
	if len(e.Aliases) != 2 {
		t.Errorf("aliases = %v, want exactly 2 (cap)", e.Aliases)
	}
}

func TestResolveParallelMatchesSequential(t *testing.T) {
	entities := []kg.Entity{
		{Name: "Apple Inc", Type: "ORG", Description: "a"},
		{Name: "Apple Incorporated", Type: "ORG", Description: "b"},
		{Name: "Microsoft Corporation", Type: "ORG", Description: "c"},
		{Name: "Microsoft Corp", Type: "ORG", Description: "d"},
		{Name: "Linux Foundation", Type: "ORG", Description: "e"},
	}

	seqCfg := DefaultConfig()
	seqCfg.ParallelEnabled = false
	seq, err := New(seqCfg)
	if err != nil {
		t.Fatal(err)
	}

	parCfg := DefaultConfig()
	parCfg.BatchSize = 1 // force the worker pool path
	par, err := New(parCfg)
	if err != nil {
		t.Fatal(err)
	}

	a, err := seq.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatal(err)
	}
	b, err := par.Resolve(context.Background(), entities)
	if err != nil {
		t.Fatal(err)
	}

	if a.ResolvedCount != b.ResolvedCount {
		t.Fatalf("sequential resolved %d, parallel resolved %d", a.ResolvedCount, b.ResolvedCount)
	}
	for i := range a.Entities {
		if a.Entities[i].Name != b.Entities[i].Name {
			t.Errorf("entity %d: sequential %q vs parallel %q", i, a.Entities[i].Name, b.Entities[i].Name)
		}
	}
}

func TestResolveEmptyDescription(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	result, err := r.Resolve(context.Background(), []kg.Entity{
		{Name: "Widget Factory Zeta", Type: "ORG"},
		{Name: "Widget Factory Zeta Inc", Type: "ORG"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ResolvedCount != 1 {
		t.Fatalf("ResolvedCount = %d, want 1", result.ResolvedCount)
	}
	if result.Entities[0].Description != "No description available" {
		t.Errorf("description = %q", result.Entities[0].Description)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Jaccard: 1, Containment: 1, Edit: 1, Abbreviation: 1}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for weights summing to 4")
	}

	cfg = DefaultConfig()
	cfg.Algorithm = "kmeans"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestResolveStats(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	result, err := r.Resolve(context.Background(), []kg.Entity{
		{Name: "NASA", Type: "ORG", Description: "x"},
		{Name: "National Aeronautics and Space Administration", Type: "ORG", Description: "y"},
		{Name: "SpaceX", Type: "ORG", Description: "z"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.OriginalCount != 3 {
		t.Errorf("OriginalCount = %d", result.OriginalCount)
	}
	if got := result.DeduplicationRate(); got <= 0 || got >= 1 {
		t.Errorf("DeduplicationRate = %v, want in (0,1)", got)
	}
}
