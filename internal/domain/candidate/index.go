package candidate

import "github.com/kailas-cloud/nqdecode/internal/domain"

// Index maps document ids to their candidate sets.
type Index struct {
	sets  map[domain.ExampleID]*Set
	order []domain.ExampleID
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{sets: make(map[domain.ExampleID]*Set)}
}

// Put stores the candidate set of a document, replacing any previous one.
func (x *Index) Put(id domain.ExampleID, set *Set) {
	if _, ok := x.sets[id]; !ok {
		x.order = append(x.order, id)
	}
	x.sets[id] = set
}

// Get returns the candidate set of a document.
func (x *Index) Get(id domain.ExampleID) (*Set, bool) {
	s, ok := x.sets[id]
	return s, ok
}

// IDs returns document ids in insertion order.
func (x *Index) IDs() []domain.ExampleID { return x.order }

// Len returns the number of documents.
func (x *Index) Len() int { return len(x.sets) }
