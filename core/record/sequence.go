package record

import (
	"errors"
	"fmt"
)

// ErrDuplicateIdentity is returned when a mutation would store an identity twice.
var ErrDuplicateIdentity = errors.New("duplicate identity")

// Sequence is the ordered, deduplicated list currently exposed to the consumer.
type Sequence struct {
	items []Record
	index map[string]int
}

// NewSequence builds a sequence from recs. Later duplicates replace earlier ones.
func NewSequence(recs ...Record) *Sequence {
	s := &Sequence{}
	s.Reset(recs)
	return s
}

// Len returns the number of records.
func (s *Sequence) Len() int {
	return len(s.items)
}

// At returns the record at index i.
func (s *Sequence) At(i int) Record {
	return s.items[i]
}

// IndexOf returns the position of identity.
func (s *Sequence) IndexOf(identity string) (int, bool) {
	i, ok := s.index[identity]
	return i, ok
}

// Contains reports whether identity is materialized.
func (s *Sequence) Contains(identity string) bool {
	_, ok := s.index[identity]
	return ok
}

// Get returns the record stored under identity.
func (s *Sequence) Get(identity string) (Record, bool) {
	i, ok := s.index[identity]
	if !ok {
		return Record{}, false
	}
	return s.items[i], true
}

// Records returns a copy of the ordered records.
func (s *Sequence) Records() []Record {
	out := make([]Record, len(s.items))
	copy(out, s.items)
	return out
}

// Slice returns a copy of at most limit records starting at offset.
func (s *Sequence) Slice(offset, limit int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.items) || limit <= 0 {
		return []Record{}
	}
	end := offset + limit
	if end > len(s.items) {
		end = len(s.items)
	}
	out := make([]Record, end-offset)
	copy(out, s.items[offset:end])
	return out
}

// Append adds records at the end, skipping identities already present.
// It returns the number of records actually appended.
func (s *Sequence) Append(recs ...Record) int {
	n := 0
	for _, r := range recs {
		if _, exists := s.index[r.Identity]; exists {
			continue
		}
		s.index[r.Identity] = len(s.items)
		s.items = append(s.items, r)
		n++
	}
	return n
}

// Insert places rec at index i, clamped to [0, Len()].
func (s *Sequence) Insert(i int, rec Record) error {
	if _, exists := s.index[rec.Identity]; exists {
		return fmt.Errorf("insert %q: %w", rec.Identity, ErrDuplicateIdentity)
	}
	if i < 0 {
		i = 0
	}
	if i > len(s.items) {
		i = len(s.items)
	}
	s.items = append(s.items, Record{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = rec
	s.reindex(i)
	return nil
}

// RemoveAt deletes the record at index i and returns it.
func (s *Sequence) RemoveAt(i int) (Record, error) {
	if i < 0 || i >= len(s.items) {
		return Record{}, fmt.Errorf("remove index %d out of range [0,%d)", i, len(s.items))
	}
	rec := s.items[i]
	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = Record{}
	s.items = s.items[:len(s.items)-1]
	delete(s.index, rec.Identity)
	s.reindex(i)
	return rec, nil
}

// Replace swaps the stored record with the same identity, keeping its index.
// It returns the previous record and false when identity is not present.
func (s *Sequence) Replace(rec Record) (Record, bool) {
	i, ok := s.index[rec.Identity]
	if !ok {
		return Record{}, false
	}
	old := s.items[i]
	s.items[i] = rec
	return old, true
}

// Reset replaces the whole content.
func (s *Sequence) Reset(recs []Record) {
	s.items = make([]Record, 0, len(recs))
	s.index = make(map[string]int, len(recs))
	for _, r := range recs {
		if i, exists := s.index[r.Identity]; exists {
			s.items[i] = r
			continue
		}
		s.index[r.Identity] = len(s.items)
		s.items = append(s.items, r)
	}
}

// reindex rebuilds the lookup for every position from i on.
func (s *Sequence) reindex(from int) {
	for j := from; j < len(s.items); j++ {
		s.index[s.items[j].Identity] = j
	}
}
