package decode

import (
	"sort"

	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// scoredSpan is a valid (start, end) pair of one window.
type scoredSpan struct {
	window    int
	start     int // window position
	end       int // window position, inclusive
	origStart int
	origEnd   int // exclusive
	score     float64
}

// better orders spans by score, then by window, start and end position.
func (a scoredSpan) better(b scoredSpan) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.window != b.window {
		return a.window < b.window
	}
	if a.start != b.start {
		return a.start < b.start
	}
	return a.end < b.end
}

// spanRules holds the rejection rules for one kind of span.
type spanRules struct {
	maxLength int
}

// pair validates (start, end) against the window and returns the scored span.
func (r spanRules) pair(w *feature.Window, window, start, end int, score float64) (scoredSpan, bool) {
	if end < start {
		return scoredSpan{}, false
	}
	if end-start+1 > r.maxLength {
		return scoredSpan{}, false
	}
	origStart, ok := w.OrigToken(start)
	if !ok {
		return scoredSpan{}, false
	}
	origEnd, ok := w.OrigToken(end)
	if !ok {
		return scoredSpan{}, false
	}
	if !w.IsMaxContext(start) {
		return scoredSpan{}, false
	}
	if origEnd < origStart {
		return scoredSpan{}, false
	}
	return scoredSpan{
		window:    window,
		start:     start,
		end:       end,
		origStart: origStart,
		origEnd:   origEnd + 1,
		score:     score,
	}, true
}

// bestIndexes returns the positions of the n largest logits. Equal logits keep
// position order.
func bestIndexes(logits []float64, n int) []int {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return logits[idx[i]] > logits[idx[j]]
	})
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}

// denseSpans enumerates the n-best start/end pairs of a dense result.
func denseSpans(w *feature.Window, window int, d *rawresult.Dense, nBest int, rules spanRules) []scoredSpan {
	starts := bestIndexes(d.StartLogits, nBest)
	ends := bestIndexes(d.EndLogits, nBest)

	var spans []scoredSpan
	for _, s := range starts {
		for _, e := range ends {
			sp, ok := rules.pair(w, window, s, e, d.StartLogits[s]+d.EndLogits[e])
			if ok {
				spans = append(spans, sp)
			}
		}
	}
	return spans
}

// topKSpans pairs the first nTop precomputed start and end entries. The window's
// cls logit is subtracted from every span score.
func topKSpans(
	w *feature.Window, window int,
	starts, ends []rawresult.Entry, cls float64,
	nTop int, rules spanRules,
) []scoredSpan {
	if nTop < len(starts) {
		starts = starts[:nTop]
	}
	if nTop < len(ends) {
		ends = ends[:nTop]
	}

	var spans []scoredSpan
	for _, s := range starts {
		for _, e := range ends {
			sp, ok := rules.pair(w, window, s.Index, e.Index, s.Logit+e.Logit-cls)
			if ok {
				spans = append(spans, sp)
			}
		}
	}
	return spans
}
