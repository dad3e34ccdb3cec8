package candidate

import "sort"

// Candidate is a long-answer span derived from document structure.
// EndToken is exclusive.
type Candidate struct {
	StartToken int  `json:"start_token"`
	EndToken   int  `json:"end_token"`
	TopLevel   bool `json:"top_level"`
}

// Contains reports whether the original token position lies inside the candidate.
func (c Candidate) Contains(pos int) bool {
	return pos >= c.StartToken && pos < c.EndToken
}

// ContainsSpan reports whether [start, end) lies inside the candidate.
func (c Candidate) ContainsSpan(start, end int) bool {
	return start >= c.StartToken && end <= c.EndToken && start < end
}

// Set is the ordered candidate list of one document with an interval lookup.
type Set struct {
	all    []Candidate
	sorted []int // indexes into all, by StartToken asc then EndToken desc
	parent []int // per sorted slot: slot of the enclosing candidate, -1 for roots
}

// NewSet builds a lookup over cands. With topLevelOnly, candidates that are not
// top level are kept in Candidates() but never returned by Enclosing.
func NewSet(cands []Candidate, topLevelOnly bool) *Set {
	s := &Set{all: cands}

	for i, c := range cands {
		if topLevelOnly && !c.TopLevel {
			continue
		}
		if c.EndToken <= c.StartToken {
			continue
		}
		s.sorted = append(s.sorted, i)
	}

	sort.SliceStable(s.sorted, func(i, j int) bool {
		a, b := cands[s.sorted[i]], cands[s.sorted[j]]
		if a.StartToken != b.StartToken {
			return a.StartToken < b.StartToken
		}
		return a.EndToken > b.EndToken
	})

	s.parent = make([]int, len(s.sorted))
	stack := make([]int, 0, 8)
	for slot, idx := range s.sorted {
		cur := cands[idx]
		for len(stack) > 0 {
			top := cands[s.sorted[stack[len(stack)-1]]]
			if top.EndToken >= cur.EndToken {
				break
			}
			stack = stack[:len(stack)-1]
		}
		s.parent[slot] = -1
		if len(stack) > 0 {
			s.parent[slot] = stack[len(stack)-1]
		}
		stack = append(stack, slot)
	}

	return s
}

// Candidates returns all candidates in their original order.
func (s *Set) Candidates() []Candidate { return s.all }

// Len returns the number of candidates, eligible or not.
func (s *Set) Len() int { return len(s.all) }

// Eligible returns the number of candidates Enclosing can return.
func (s *Set) Eligible() int { return len(s.sorted) }

// At returns the candidate at index i of Candidates().
func (s *Set) At(i int) Candidate { return s.all[i] }

// Enclosing returns the index (into Candidates()) of the smallest eligible
// candidate containing pos.
func (s *Set) Enclosing(pos int) (int, bool) {
	slot := sort.Search(len(s.sorted), func(i int) bool {
		return s.all[s.sorted[i]].StartToken > pos
	}) - 1

	for slot >= 0 {
		idx := s.sorted[slot]
		if s.all[idx].Contains(pos) {
			return idx, true
		}
		slot = s.parent[slot]
	}
	return -1, false
}
