package kg

import "encoding/json"

// MaxSourceIDs is the default bound on the number of source chunk ids
// tracked per entity or relation.
const MaxSourceIDs = 50

// SourceIDs is a bounded ordered set of chunk ids with FIFO eviction.
// The zero value is ready to use with the default bound. Duplicates
// are ignored; once the bound is reached the oldest id is evicted.
type SourceIDs struct {
	ids []string
	max int
}

// NewSourceIDs returns a set bounded to max ids. max <= 0 uses
// MaxSourceIDs.
func NewSourceIDs(max int) SourceIDs {
	if max <= 0 {
		max = MaxSourceIDs
	}
	return SourceIDs{max: max}
}

func (s *SourceIDs) bound() int {
	if s.max <= 0 {
		return MaxSourceIDs
	}
	return s.max
}

// Add appends id unless already present, evicting the oldest entry
// when the bound is exceeded. Empty ids are ignored.
func (s *SourceIDs) Add(id string) {
	if id == "" {
		return
	}
	for _, existing := range s.ids {
		if existing == id {
			return
		}
	}
	s.ids = append(s.ids, id)
	if n := len(s.ids) - s.bound(); n > 0 {
		s.ids = append(s.ids[:0], s.ids[n:]...)
	}
}

// AddAll adds every id in order.
func (s *SourceIDs) AddAll(ids []string) {
	for _, id := range ids {
		s.Add(id)
	}
}

// IDs returns the ids in insertion order. The returned slice is a copy.
func (s *SourceIDs) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of ids held.
func (s *SourceIDs) Len() int { return len(s.ids) }

// Contains reports whether id is in the set.
func (s *SourceIDs) Contains(id string) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the set as a plain JSON array of ids.
func (s SourceIDs) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ids)
}

// UnmarshalJSON decodes a JSON array of ids, applying the default
// bound and dedup rules.
func (s *SourceIDs) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = SourceIDs{max: s.max}
	s.AddAll(ids)
	return nil
}
