package decode

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// WindowResult pairs a feature window with its raw result. Result is nil when
// inference produced nothing usable for the window.
type WindowResult struct {
	Window *feature.Window
	Result *rawresult.Result
}

// Document is everything the decoder needs for one example.
type Document struct {
	ExampleID  domain.ExampleID
	Candidates *candidate.Set
	Windows    []WindowResult
}

// Assemble groups windows and results by document. Documents follow the
// candidate index order; windows of a document are ordered by doc_span_index,
// keeping input order for equal offsets. A window whose document is missing
// from the index aborts assembly.
func Assemble(
	index *candidate.Index,
	windows []feature.Window,
	results map[feature.UniqueID]rawresult.Result,
) ([]Document, error) {
	byDoc := make(map[domain.ExampleID][]WindowResult, index.Len())

	for i := range windows {
		w := &windows[i]
		id, err := w.DocumentID()
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w.UniqueID, err)
		}
		if _, ok := index.Get(id); !ok {
			return nil, domain.NewMissingCandidates(id, string(w.UniqueID))
		}
		wr := WindowResult{Window: w}
		if r, ok := results[w.UniqueID]; ok {
			wr.Result = &r
		}
		byDoc[id] = append(byDoc[id], wr)
	}

	docs := make([]Document, 0, index.Len())
	for _, id := range index.IDs() {
		set, _ := index.Get(id)
		ws := byDoc[id]
		sort.SliceStable(ws, func(i, j int) bool {
			return ws[i].Window.DocSpanIndex < ws[j].Window.DocSpanIndex
		})
		docs = append(docs, Document{ExampleID: id, Candidates: set, Windows: ws})
	}
	return docs, nil
}
