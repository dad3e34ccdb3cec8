package evaluate

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/gold"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
)

func span(start, end int) prediction.Span {
	return prediction.Span{StartToken: start, EndToken: end}
}

func goldExample(id domain.ExampleID, long prediction.Span, short []prediction.Span, yesNo domain.YesNo) gold.Example {
	return gold.Example{
		ExampleID: id,
		Annotations: []gold.Annotation{{
			LongAnswer:   gold.LongAnswer{StartToken: long.StartToken, EndToken: long.EndToken},
			ShortAnswers: short,
			YesNoAnswer:  yesNo,
		}},
	}
}

func record(id domain.ExampleID, long prediction.Span, longScore float64, short []prediction.Span, shortScore float64) prediction.Record {
	return prediction.Record{
		ExampleID:         id,
		LongAnswer:        long,
		LongAnswerScore:   longScore,
		ShortAnswers:      short,
		ShortAnswersScore: shortScore,
		YesNoAnswer:       domain.YesNoNone,
		AnswerType:        domain.AnswerShort,
	}
}

func scenario() ([]gold.Example, []prediction.Record) {
	examples := []gold.Example{
		goldExample("1", span(3, 10), []prediction.Span{span(5, 9)}, domain.YesNoNone),
		goldExample("2", span(20, 30), nil, domain.YesNoNone),
		goldExample("3", prediction.NoSpan, nil, domain.YesNoNone),
		goldExample("4", span(40, 50), nil, domain.YesNoYes),
	}
	preds := []prediction.Record{
		record("1", span(3, 10), 5, []prediction.Span{span(5, 9)}, 4),
		record("2", span(20, 31), 3, []prediction.Span{span(22, 23)}, 1),
		record("3", span(0, 5), 1, []prediction.Span{}, -10000),
		record("9", span(1, 2), 9, nil, 9),
	}
	return examples, preds
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func assertMetrics(t *testing.T, name string, got Metrics, threshold float64, predicted, correct, goldAnswers int, f1 float64) {
	t.Helper()
	if !near(got.Threshold, threshold) || got.Predicted != predicted || got.Correct != correct ||
		got.GoldAnswers != goldAnswers || !near(got.F1, f1) {
		t.Errorf("%s: got %+v, want threshold=%v predicted=%d correct=%d gold=%d f1=%v",
			name, got, threshold, predicted, correct, goldAnswers, f1)
	}
}

func TestEvaluate(t *testing.T) {
	examples, preds := scenario()

	report, err := New(1.5, nil).Evaluate(examples, preds)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if report.Examples != 4 || report.Missing != 1 || report.Unmatched != 1 {
		t.Errorf("counts: got %+v", report)
	}
	assertMetrics(t, "long", report.Long, 1.5, 2, 1, 3, 0.4)
	assertMetrics(t, "short", report.Short, 1.5, 1, 1, 2, 2.0/3)
	assertMetrics(t, "best long", report.BestLong, 5, 1, 1, 3, 0.5)
	assertMetrics(t, "best short", report.BestShort, 4, 1, 1, 2, 2.0/3)

	if !near(report.Long.Precision, 0.5) || !near(report.Long.Recall, 1.0/3) {
		t.Errorf("long precision/recall: got %v/%v", report.Long.Precision, report.Long.Recall)
	}
}

func TestEvaluate_ThresholdIsInclusive(t *testing.T) {
	examples, preds := scenario()

	report, err := New(5, nil).Evaluate(examples, preds)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// The long score of document 1 equals the threshold and still counts.
	assertMetrics(t, "long", report.Long, 5, 1, 1, 3, 0.5)
	assertMetrics(t, "short", report.Short, 5, 0, 0, 2, 0)
}

func TestEvaluate_AnswerRules(t *testing.T) {
	tests := []struct {
		name        string
		gold        gold.Example
		pred        prediction.Record
		longCorrect int
		shortPred   int
		shortOK     int
	}{
		{
			name:        "no answer type ignores spans",
			gold:        goldExample("1", span(3, 10), []prediction.Span{span(5, 9)}, domain.YesNoNone),
			pred:        func() prediction.Record { r := record("1", span(3, 10), 5, []prediction.Span{span(5, 9)}, 5); r.AnswerType = domain.AnswerNone; return r }(),
			longCorrect: 0, shortPred: 0, shortOK: 0,
		},
		{
			name:        "yes matches yes",
			gold:        goldExample("1", span(3, 10), nil, domain.YesNoYes),
			pred:        func() prediction.Record { r := record("1", span(3, 10), 5, nil, 5); r.YesNoAnswer = domain.YesNoYes; return r }(),
			longCorrect: 1, shortPred: 1, shortOK: 1,
		},
		{
			name:        "yes against spans",
			gold:        goldExample("1", span(3, 10), []prediction.Span{span(5, 9)}, domain.YesNoNone),
			pred:        func() prediction.Record { r := record("1", span(3, 10), 5, nil, 5); r.YesNoAnswer = domain.YesNoYes; return r }(),
			longCorrect: 1, shortPred: 1, shortOK: 0,
		},
		{
			name:        "answer for a null gold is wrong",
			gold:        goldExample("1", prediction.NoSpan, nil, domain.YesNoNone),
			pred:        record("1", span(3, 10), 5, []prediction.Span{span(5, 9)}, 5),
			longCorrect: 0, shortPred: 1, shortOK: 0,
		},
		{
			name:        "no-answer record",
			gold:        goldExample("1", span(3, 10), nil, domain.YesNoNone),
			pred:        prediction.NoAnswer("1"),
			longCorrect: 0, shortPred: 0, shortOK: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report, err := New(1.5, nil).Evaluate([]gold.Example{tc.gold}, []prediction.Record{tc.pred})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if report.Long.Correct != tc.longCorrect {
				t.Errorf("long correct: got %d, want %d", report.Long.Correct, tc.longCorrect)
			}
			if report.Short.Predicted != tc.shortPred || report.Short.Correct != tc.shortOK {
				t.Errorf("short: got predicted=%d correct=%d, want %d/%d",
					report.Short.Predicted, report.Short.Correct, tc.shortPred, tc.shortOK)
			}
		})
	}
}

func TestEvaluate_LaterPredictionWins(t *testing.T) {
	examples := []gold.Example{goldExample("1", span(3, 10), nil, domain.YesNoNone)}
	preds := []prediction.Record{
		record("1", span(0, 2), 5, nil, 0),
		record("1", span(3, 10), 5, nil, 0),
	}

	report, err := New(1.5, nil).Evaluate(examples, preds)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Long.Correct != 1 {
		t.Errorf("long correct: got %d, want 1", report.Long.Correct)
	}
}

func TestEvaluate_NothingAnswered(t *testing.T) {
	examples := []gold.Example{goldExample("1", span(3, 10), nil, domain.YesNoNone)}

	report, err := New(1.5, nil).Evaluate(examples, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	assertMetrics(t, "best long", report.BestLong, 0, 0, 0, 1, 0)
	if report.Missing != 1 {
		t.Errorf("missing: got %d, want 1", report.Missing)
	}
}

func TestEvaluate_InvalidGold(t *testing.T) {
	dup := goldExample("1", span(3, 10), nil, domain.YesNoNone)
	for name, examples := range map[string][]gold.Example{
		"empty":     nil,
		"duplicate": {dup, dup},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(1.5, nil).Evaluate(examples, nil)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestEvaluate_SetsF1Gauge(t *testing.T) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_f1"}, []string{"kind"})
	examples, preds := scenario()

	if _, err := New(1.5, nil).WithMetrics(gauge).Evaluate(examples, preds); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := testutil.ToFloat64(gauge.WithLabelValues(KindLong)); !near(got, 0.4) {
		t.Errorf("long f1 gauge: got %v, want 0.4", got)
	}
	if got := testutil.ToFloat64(gauge.WithLabelValues(KindShort)); !near(got, 2.0/3) {
		t.Errorf("short f1 gauge: got %v, want 0.667", got)
	}
}
