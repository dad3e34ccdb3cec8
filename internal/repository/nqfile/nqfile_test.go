package nqfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

const evalJSONL = `{"example_id": -1220107454853145579, "document_text": "Email marketing ...", "long_answer_candidates": [{"start_token": 14, "end_token": 170, "top_level": true}, {"start_token": 15, "end_token": 40, "top_level": false}]}
{"example_id": "abc", "document_text": "x", "long_answer_candidates": []}
`

func TestReader_Candidates(t *testing.T) {
	index, err := NewReader(true, nil).Candidates(strings.NewReader(evalJSONL))
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if index.Len() != 2 {
		t.Fatalf("Len = %d, want 2", index.Len())
	}
	ids := index.IDs()
	if ids[0] != "-1220107454853145579" || ids[1] != "abc" {
		t.Errorf("IDs = %v", ids)
	}
	set, _ := index.Get(ids[0])
	if set.Len() != 2 || set.Eligible() != 1 {
		t.Errorf("Len/Eligible = %d/%d, want 2/1", set.Len(), set.Eligible())
	}
	idx, ok := set.Enclosing(20)
	if !ok || idx != 0 {
		t.Errorf("Enclosing(20) = %d, %v; want top-level candidate 0", idx, ok)
	}
}

func TestReader_Candidates_AllLevels(t *testing.T) {
	index, err := NewReader(false, nil).Candidates(strings.NewReader(evalJSONL))
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	set, _ := index.Get("-1220107454853145579")
	if idx, _ := set.Enclosing(20); idx != 1 {
		t.Errorf("Enclosing(20) = %d, want nested candidate 1", idx)
	}
}

func TestReader_Candidates_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"duplicate", `{"example_id": 1, "long_answer_candidates": []}` + "\n" + `{"example_id": "1", "long_answer_candidates": []}`},
		{"missing id", `{"long_answer_candidates": []}`},
		{"broken json", `{"example_id": 1, "long_answer_candidates": [`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewReader(true, nil).Candidates(strings.NewReader(tc.in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReader_Gold(t *testing.T) {
	in := `{"example_id": 5, "document_text": "x", "annotations": [{"long_answer": {"start_token": 14, "end_token": 170, "candidate_index": 0}, "short_answers": [{"start_token": 20, "end_token": 22}], "yes_no_answer": "NONE"}, {"long_answer": {"start_token": -1, "end_token": -1, "candidate_index": -1}, "short_answers": [], "yes_no_answer": "NONE"}]}
{"example_id": "abc", "annotations": []}
`
	examples, err := NewReader(true, nil).Gold(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Gold: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("len = %d, want 2", len(examples))
	}
	ex := examples[0]
	if ex.ExampleID != "5" || len(ex.Annotations) != 2 {
		t.Fatalf("example 0 = %+v", ex)
	}
	if !ex.Annotations[1].LongAnswer.IsNull() {
		t.Error("second annotation should have a null long answer")
	}
	// One of two annotators is not enough for a gold answer.
	if ex.HasLongAnswer() {
		t.Error("HasLongAnswer = true, want false")
	}
	if examples[1].HasLongAnswer() || examples[1].HasShortAnswer() {
		t.Error("example without annotations has no gold answer")
	}
}

func TestReader_Gold_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"duplicate", `{"example_id": 1, "annotations": []}` + "\n" + `{"example_id": "1", "annotations": []}`},
		{"missing id", `{"annotations": []}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReader(true, nil).Gold(strings.NewReader(tc.in))
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestReader_Features(t *testing.T) {
	in := `{"unique_id": "7_0", "doc_span_index": 0, "input_ids": [101, 5, 6], "token_to_orig_map": {"1": 0, "2": 1}}
{"unique_id": 1000000, "example_id": 7, "doc_span_index": 1, "token_to_orig_map": {"1": 40}, "token_is_max_context": {"1": false}}
`
	windows, err := NewReader(true, nil).Features(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("len = %d, want 2", len(windows))
	}
	if orig, ok := windows[0].OrigToken(2); !ok || orig != 1 {
		t.Errorf("OrigToken(2) = %d, %v", orig, ok)
	}
	doc, err := windows[1].DocumentID()
	if err != nil || doc != "7" {
		t.Errorf("DocumentID = %q, %v", doc, err)
	}
	if windows[1].IsMaxContext(1) {
		t.Error("position 1 of window 1 is not max context")
	}
}

func TestReader_Features_Invalid(t *testing.T) {
	in := `{"unique_id": "7_0", "input_ids": [1, 2], "input_mask": [1], "token_to_orig_map": {}}`
	_, err := NewReader(true, nil).Features(strings.NewReader(in))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReader_Results_SkipsMalformed(t *testing.T) {
	in := `{"unique_id": "7_0", "start_logits": [0, 1], "end_logits": [1, 0], "answer_type_logits": [0, 0, 0, 1, 0]}
{"unique_id": "7_1", "start_logits": [0, 1], "end_logits": [1], "answer_type_logits": [0, 0, 0, 1, 0]}
{"unique_id": "7_2", "long_start_topk_logits": [2], "long_start_topk_index": [3], "long_end_topk_logits": [1], "long_end_topk_index": [5], "short_start_topk_logits": [2], "short_start_topk_index": [3], "short_end_topk_logits": [1], "short_end_topk_index": [4], "long_cls_logits": 0.5, "short_cls_logits": 0.25, "answer_type_logits": [0, 0, 0, 1, 0]}
`
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_skipped"}, []string{"reason"})
	results, err := NewReader(true, nil).WithMetrics(skipped).Results(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[1].Kind() != rawresult.KindTopK {
		t.Errorf("results[1] kind = %v, want top-k", results[1].Kind())
	}
	if v := testutil.ToFloat64(skipped.WithLabelValues(SkipMalformed)); v != 1 {
		t.Errorf("malformed = %v, want 1", v)
	}
}

func TestReader_Results_BrokenJSON(t *testing.T) {
	_, err := NewReader(true, nil).Results(strings.NewReader(`{"unique_id": "7_0", "start_logits": [`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWritePredictions(t *testing.T) {
	set := prediction.NewSet()
	set.Put(prediction.NoAnswer("42"))
	set.Put(prediction.Record{
		ExampleID:         "abc",
		LongAnswer:        prediction.Span{StartToken: 3, EndToken: 10},
		LongAnswerScore:   6,
		ShortAnswers:      []prediction.Span{{StartToken: 5, EndToken: 9}},
		ShortAnswersScore: 6,
		YesNoAnswer:       domain.YesNoNone,
		AnswerType:        domain.AnswerShort,
	})

	var buf bytes.Buffer
	if err := WritePredictions(&buf, set.File()); err != nil {
		t.Fatalf("WritePredictions: %v", err)
	}
	if !strings.HasPrefix(buf.String(), `{"predictions":[{"example_id":42,`) {
		t.Errorf("unexpected output: %s", buf.String())
	}

	back, err := NewReader(true, nil).Predictions(&buf)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(back.Predictions) != 2 || back.Predictions[1].ShortAnswers[0].EndToken != 9 {
		t.Errorf("decoded = %+v", back.Predictions)
	}
}

func TestWritePredictions_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePredictions(&buf, prediction.File{}); err != nil {
		t.Fatalf("WritePredictions: %v", err)
	}
	if strings.TrimSpace(buf.String()) != `{"predictions":[]}` {
		t.Errorf("got %s", buf.String())
	}
}

func TestWriteSubmission(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSubmission(&buf, []prediction.Row{
		{ID: "42_long", PredictionString: "3:10"},
		{ID: "42_short", PredictionString: "5:9 11:12"},
	})
	if err != nil {
		t.Fatalf("WriteSubmission: %v", err)
	}
	want := "example_id,PredictionString\n42_long,3:10\n42_short,5:9 11:12\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestSampleSubmissionIDs(t *testing.T) {
	in := "example_id,PredictionString\n1_long,\n1_short,\n\n2_long,\n"
	ids, err := SampleSubmissionIDs(strings.NewReader(in))
	if err != nil {
		t.Fatalf("SampleSubmissionIDs: %v", err)
	}
	if strings.Join(ids, ",") != "1_long,1_short,2_long" {
		t.Errorf("ids = %v", ids)
	}

	if _, err := SampleSubmissionIDs(strings.NewReader("")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty file, got %v", err)
	}
	if _, err := SampleSubmissionIDs(strings.NewReader("id,x\n")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for wrong header, got %v", err)
	}
}

func TestOpen_Compressed(t *testing.T) {
	dir := t.TempDir()
	payload := []byte(`{"example_id": 1, "long_answer_candidates": []}` + "\n")

	gzPath := filepath.Join(dir, "eval.jsonl.gz")
	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, _ = gw.Write(payload)
	_ = gw.Close()
	if err := os.WriteFile(gzPath, gzBuf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	zstPath := filepath.Join(dir, "eval.jsonl.zst")
	enc, _ := zstd.NewWriter(nil)
	if err := os.WriteFile(zstPath, enc.EncodeAll(payload, nil), 0o600); err != nil {
		t.Fatal(err)
	}

	plainPath := filepath.Join(dir, "eval.jsonl")
	if err := os.WriteFile(plainPath, payload, 0o600); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{gzPath, zstPath, plainPath} {
		rc, err := Open(p)
		if err != nil {
			t.Fatalf("Open(%s): %v", p, err)
		}
		got, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("%s: got %q", p, got)
		}
	}
}

func TestCreate_MakesParentDirs(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "nested", "predictions.json")
	f, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = f.Close()
	if _, err := os.Stat(p); err != nil {
		t.Errorf("stat: %v", err)
	}
}

func TestPredictionsRoundTripPreservesStringIDs(t *testing.T) {
	var buf bytes.Buffer
	_ = WritePredictions(&buf, prediction.File{Predictions: []prediction.Record{prediction.NoAnswer("doc-1")}})
	var raw map[string][]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["predictions"][0]["example_id"] != "doc-1" {
		t.Errorf("example_id = %v", raw["predictions"][0]["example_id"])
	}
}
