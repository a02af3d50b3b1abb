// Package tracker keeps the durable set of catalog URLs that have already been
// fetched and recorded.
package tracker

import (
	"encoding/json"
	"fmt"
)

// Set is an insertion-ordered set of URLs. The zero value is empty and ready
// to use.
type Set struct {
	order []string
	index map[string]struct{}
}

// NewSet builds a Set from ids, dropping duplicates and blanks.
func NewSet(ids ...string) Set {
	var s Set
	for _, id := range ids {
		s.add(id)
	}
	return s
}

// Contains reports whether id is in the set.
func (s Set) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids.
func (s Set) Len() int {
	return len(s.order)
}

// IDs returns a copy of the ids in insertion order.
func (s Set) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// With returns a copy of s with id added, and whether id was new.
func (s Set) With(id string) (Set, bool) {
	if id == "" || s.Contains(id) {
		return s, false
	}
	out := NewSet(s.order...)
	out.add(id)
	return out, true
}

func (s *Set) add(id string) bool {
	if id == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// MarshalJSON encodes the set as a JSON array of strings.
func (s Set) MarshalJSON() ([]byte, error) {
	ids := s.order
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal processed set: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a JSON array of strings.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("unmarshal processed set: %w", err)
	}
	*s = NewSet(ids...)
	return nil
}
