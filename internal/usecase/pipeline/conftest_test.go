package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
	"github.com/kailas-cloud/nqdecode/internal/repository/nqfile"
	"github.com/kailas-cloud/nqdecode/internal/usecase/decode"
	"github.com/kailas-cloud/nqdecode/internal/usecase/submission"
)

// fakeStore keeps results in memory and records lookups.
type fakeStore struct {
	mu      sync.Mutex
	data    map[feature.UniqueID]rawresult.Result
	lookups [][]feature.UniqueID
	putErr  error
}

func newFakeStore(results ...rawresult.Result) *fakeStore {
	s := &fakeStore{data: map[feature.UniqueID]rawresult.Result{}}
	for _, r := range results {
		s.data[r.UniqueID()] = r
	}
	return s
}

func (s *fakeStore) PutMany(_ context.Context, results []rawresult.Result) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return 0, s.putErr
	}
	for _, r := range results {
		s.data[r.UniqueID()] = r
	}
	return len(results), nil
}

func (s *fakeStore) Lookup(_ context.Context, ids []feature.UniqueID) (map[feature.UniqueID]rawresult.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, ids)
	out := make(map[feature.UniqueID]rawresult.Result, len(ids))
	for _, id := range ids {
		if r, ok := s.data[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// Document "1" has one candidate [3,10) and a single window whose position p
// maps to original token p. The result peaks at start 5 and end 8.
const scenarioEval = `{"example_id": 1, "document_text": "a b c", "long_answer_candidates": [{"start_token": 3, "end_token": 10, "top_level": true}]}
`

func scenarioWindow() feature.Window {
	m := make(map[int]int, 15)
	for p := 1; p < 16; p++ {
		m[p] = p
	}
	return feature.Window{
		UniqueID:       "1_0",
		DocSpanIndex:   0,
		InputIDs:       make([]int, 16),
		TokenToOrigMap: m,
	}
}

func scenarioResult(t *testing.T) rawresult.Result {
	t.Helper()
	start := make([]float64, 16)
	end := make([]float64, 16)
	start[5], end[8] = 4, 3
	r, err := rawresult.NewDense("1_0", rawresult.Dense{
		StartLogits:      start,
		EndLogits:        end,
		AnswerTypeLogits: []float64{1, 0, 0, 2, 0},
	})
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	return r
}

func writeJSONL(t *testing.T, path string, values ...any) {
	t.Helper()
	var b strings.Builder
	for _, v := range values {
		line, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	writeText(t, path, b.String())
}

func writeText(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readText(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

// scenarioFiles writes the scenario inputs into a temp dir. The results file
// is only written when withResults is set.
func scenarioFiles(t *testing.T, withResults bool) Files {
	t.Helper()
	dir := t.TempDir()
	files := Files{
		EvalPath:        filepath.Join(dir, "eval.jsonl"),
		FeaturesPath:    filepath.Join(dir, "features.jsonl"),
		PredictionsPath: filepath.Join(dir, "out", "predictions.json"),
		SubmissionPath:  filepath.Join(dir, "out", "submission.csv"),
	}
	writeText(t, files.EvalPath, scenarioEval)
	writeJSONL(t, files.FeaturesPath, scenarioWindow())
	if withResults {
		files.ResultsPath = filepath.Join(dir, "results.jsonl")
		writeJSONL(t, files.ResultsPath, scenarioResult(t))
	}
	return files
}

func newTestBatch(store ResultStore) *Batch {
	p := New(decode.New(decode.DefaultOptions(), nil), nil)
	if store != nil {
		p.WithStore(store)
	}
	return NewBatch(p, nqfile.NewReader(true, nil), submission.New(submission.DefaultThreshold, nil), nil)
}
