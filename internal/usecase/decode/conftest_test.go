package decode

import (
	"testing"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// shiftedWindow builds a window of n positions where position 0 is CLS and
// position p >= 1 maps to original token p+offset.
func shiftedWindow(uid string, span, n, offset int) feature.Window {
	m := make(map[int]int, n-1)
	for p := 1; p < n; p++ {
		m[p] = p + offset
	}
	return feature.Window{
		UniqueID:       feature.UniqueID(uid),
		DocSpanIndex:   span,
		InputIDs:       make([]int, n),
		TokenToOrigMap: m,
	}
}

func denseResult(t *testing.T, uid string, start, end, types []float64) *rawresult.Result {
	t.Helper()
	r, err := rawresult.NewDense(feature.UniqueID(uid), rawresult.Dense{
		StartLogits:      start,
		EndLogits:        end,
		AnswerTypeLogits: types,
	})
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	return &r
}

func topKResult(t *testing.T, uid string, tk rawresult.TopK) *rawresult.Result {
	t.Helper()
	r, err := rawresult.NewTopK(feature.UniqueID(uid), tk)
	if err != nil {
		t.Fatalf("NewTopK: %v", err)
	}
	return &r
}

// peaked returns n zero logits with the given positions set.
func peaked(n int, peaks map[int]float64) []float64 {
	v := make([]float64, n)
	for p, x := range peaks {
		v[p] = x
	}
	return v
}

func topLevel(spans ...[2]int) *candidate.Set {
	cands := make([]candidate.Candidate, len(spans))
	for i, s := range spans {
		cands[i] = candidate.Candidate{StartToken: s[0], EndToken: s[1], TopLevel: true}
	}
	return candidate.NewSet(cands, true)
}

func newTestService() *Service {
	return New(DefaultOptions(), nil)
}

func singleDoc(id domain.ExampleID, cands *candidate.Set, w feature.Window, r *rawresult.Result) *Document {
	return &Document{
		ExampleID:  id,
		Candidates: cands,
		Windows:    []WindowResult{{Window: &w, Result: r}},
	}
}
