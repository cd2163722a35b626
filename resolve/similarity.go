// Package resolve collapses near-duplicate entities within a batch.
// Entities are blocked by type, scored pairwise with a weighted blend
// of name-similarity metrics, clustered by threshold, and merged into
// canonical entities with aliases.
package resolve

import (
	"fmt"
	"math"
	"strings"
)

// UnknownType is the blocking key for entities without a type.
const UnknownType = "UNKNOWN"

// Weights blends the four similarity metrics. They must sum to 1.0.
type Weights struct {
	Jaccard      float64 `json:"jaccard" yaml:"jaccard"`
	Containment  float64 `json:"containment" yaml:"containment"`
	Edit         float64 `json:"edit" yaml:"edit"`
	Abbreviation float64 `json:"abbreviation" yaml:"abbreviation"`
}

// DefaultWeights returns the standard metric blend.
func DefaultWeights() Weights {
	return Weights{Jaccard: 0.35, Containment: 0.25, Edit: 0.30, Abbreviation: 0.10}
}

// weightSumTolerance allows for float drift when validating weights.
const weightSumTolerance = 0.01

// Validate checks the weights sum to 1.0 within tolerance and are all
// non-negative.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"jaccard": w.Jaccard, "containment": w.Containment,
		"edit": w.Edit, "abbreviation": w.Abbreviation,
	} {
		if v < 0 {
			return fmt.Errorf("similarity weight %s is negative: %v", name, v)
		}
	}
	sum := w.Jaccard + w.Containment + w.Edit + w.Abbreviation
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("similarity weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Score is the full metric breakdown for one entity pair.
type Score struct {
	Name1        string  `json:"name1"`
	Name2        string  `json:"name2"`
	Type1        string  `json:"type1"`
	Type2        string  `json:"type2"`
	Jaccard      float64 `json:"jaccard"`
	Containment  float64 `json:"containment"`
	Levenshtein  float64 `json:"levenshtein"`
	Abbreviation float64 `json:"abbreviation"`
	Final        float64 `json:"final"`
}

// stopWords are skipped when building abbreviation candidates.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true,
	"or": true, "for": true, "in": true, "on": true, "at": true,
	"to": true, "from": true,
}

// Calculator scores entity-name pairs.
type Calculator struct {
	weights Weights
}

// NewCalculator returns a Calculator with the given weights.
func NewCalculator(w Weights) *Calculator {
	return &Calculator{weights: w}
}

// Compare scores a pair of named, typed entities. Cross-type pairs and
// pairs rejected by the cheap heuristics score 0 without computing the
// full metric set.
func (c *Calculator) Compare(name1, type1, name2, type2 string) Score {
	score := Score{Name1: name1, Name2: name2, Type1: type1, Type2: type2}

	if blockKey(type1) != blockKey(type2) {
		return score
	}

	n1 := normalize(name1)
	n2 := normalize(name2)
	if n1 == "" || n2 == "" {
		return score
	}

	if earlyReject(n1, n2) {
		return score
	}

	score.Jaccard = jaccard(n1, n2)
	score.Containment = containment(n1, n2)
	score.Levenshtein = levenshteinSimilarity(n1, n2)
	score.Abbreviation = abbreviationMatch(n1, n2)
	score.Final = c.weights.Jaccard*score.Jaccard +
		c.weights.Containment*score.Containment +
		c.weights.Edit*score.Levenshtein +
		c.weights.Abbreviation*score.Abbreviation

	// An exact initialism ("MIT" vs "Massachusetts Institute of
	// Technology") is a definite duplicate even though the other
	// metrics score near zero for it.
	if score.Abbreviation == 1 {
		score.Final = 1
	}
	return score
}

// blockKey maps an entity type to its blocking partition.
func blockKey(entityType string) string {
	t := strings.TrimSpace(entityType)
	if t == "" {
		return UnknownType
	}
	return strings.ToUpper(t)
}

// normalize lowercases, strips non-alphanumerics, and collapses
// whitespace.
func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// earlyReject applies the cheap pre-filters: wildly different lengths,
// or long multi-word names whose first tokens have nothing in common.
func earlyReject(n1, n2 string) bool {
	l1, l2 := len(n1), len(n2)
	if l1 > 10 && l2 > 10 {
		longer, shorter := float64(l1), float64(l2)
		if shorter > longer {
			longer, shorter = shorter, longer
		}
		if longer/shorter > 5 {
			return true
		}
	}

	short1 := l1 <= 10 && !strings.Contains(n1, " ")
	short2 := l2 <= 10 && !strings.Contains(n2, " ")
	if short1 || short2 {
		return false
	}

	t1 := strings.Fields(n1)[0]
	t2 := strings.Fields(n2)[0]
	if len(t1) >= 2 && len(t2) >= 2 && t1[:2] == t2[:2] {
		return false
	}
	return charOverlap(t1, t2) <= 0.5
}

// charOverlap is the fraction of distinct characters shared between
// two tokens, relative to the smaller character set.
func charOverlap(a, b string) float64 {
	setA := make(map[rune]bool)
	for _, r := range a {
		setA[r] = true
	}
	setB := make(map[rune]bool)
	for _, r := range b {
		setB[r] = true
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for r := range setA {
		if setB[r] {
			shared++
		}
	}
	min := len(setA)
	if len(setB) < min {
		min = len(setB)
	}
	return float64(shared) / float64(min)
}

// jaccard computes token-set Jaccard similarity.
func jaccard(n1, n2 string) float64 {
	set1 := make(map[string]bool)
	for _, t := range strings.Fields(n1) {
		set1[t] = true
	}
	set2 := make(map[string]bool)
	for _, t := range strings.Fields(n2) {
		set2[t] = true
	}
	if len(set1) == 0 && len(set2) == 0 {
		return 0
	}
	intersection := 0
	for t := range set1 {
		if set2[t] {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}

// containment is 1 when one normalised name is a substring of the
// other.
func containment(n1, n2 string) float64 {
	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		return 1
	}
	return 0
}

// levenshteinSimilarity converts edit distance to [0,1].
func levenshteinSimilarity(n1, n2 string) float64 {
	if n1 == n2 {
		return 1
	}
	r1, r2 := []rune(n1), []rune(n2)
	max := len(r1)
	if len(r2) > max {
		max = len(r2)
	}
	if max == 0 {
		return 1
	}
	return 1 - float64(levenshtein(r1, r2))/float64(max)
}

// levenshtein computes edit distance with a rolling single-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur := row[j]
			row[j] = minInt(row[j]+1, row[j-1]+1, prev+cost)
			prev = cur
		}
	}
	return row[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// abbreviationMatch is 1 when the shorter name is the initialism of
// the longer one (stop words skipped), or the names are identical.
func abbreviationMatch(n1, n2 string) float64 {
	if n1 == n2 {
		return 1
	}
	shorter, longer := n1, n2
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	var initials strings.Builder
	for _, word := range strings.Fields(longer) {
		if stopWords[word] {
			continue
		}
		initials.WriteByte(word[0])
	}
	if initials.Len() == 0 {
		return 0
	}
	if strings.ReplaceAll(shorter, " ", "") == initials.String() {
		return 1
	}
	return 0
}
