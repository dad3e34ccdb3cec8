package prediction

import "github.com/kailas-cloud/nqdecode/internal/domain"

// Set collects one record per document. A later Put for the same id replaces
// the earlier record but keeps its position.
type Set struct {
	pos     map[domain.ExampleID]int
	records []Record
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{pos: make(map[domain.ExampleID]int)}
}

// Put adds or replaces the record of r.ExampleID.
func (s *Set) Put(r Record) {
	if i, ok := s.pos[r.ExampleID]; ok {
		s.records[i] = r
		return
	}
	s.pos[r.ExampleID] = len(s.records)
	s.records = append(s.records, r)
}

// Get returns the record of a document.
func (s *Set) Get(id domain.ExampleID) (Record, bool) {
	i, ok := s.pos[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Len returns the number of documents.
func (s *Set) Len() int { return len(s.records) }

// Records returns the records in first-insertion order.
func (s *Set) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// File wraps the records in the predictions output document.
func (s *Set) File() File {
	return File{Predictions: s.Records()}
}
