// Package evaluate scores predictions against the gold annotations of an
// evaluation file.
package evaluate

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/gold"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
)

// Answer kinds label the F1 gauge.
const (
	KindLong  = "long"
	KindShort = "short"
)

// Metrics are precision, recall and F1 of one answer kind at one threshold.
type Metrics struct {
	Threshold   float64 `json:"threshold"`
	GoldAnswers int     `json:"gold_answers"`
	Predicted   int     `json:"predicted"`
	Correct     int     `json:"correct"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`
}

// Report is the outcome of one evaluation.
type Report struct {
	Examples  int     `json:"examples"`
	Missing   int     `json:"missing_predictions"` // gold examples without a prediction
	Unmatched int     `json:"unmatched_predictions"`
	Long      Metrics `json:"long"`
	Short     Metrics `json:"short"`
	BestLong  Metrics `json:"best_long"`
	BestShort Metrics `json:"best_short"`
}

// Service evaluates predictions with the submission threshold.
type Service struct {
	threshold float64
	f1        *prometheus.GaugeVec
	logger    *zap.Logger
}

// New creates an evaluator. Answers scoring below threshold count as not given.
func New(threshold float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{threshold: threshold, logger: logger}
}

// WithMetrics sets the F1 gauge (label "kind").
func (s *Service) WithMetrics(f1 *prometheus.GaugeVec) *Service {
	s.f1 = f1
	return s
}

// scored is one document's answer of one kind.
type scored struct {
	score    float64
	answered bool
	correct  bool
}

// Evaluate scores preds against examples. A later prediction for the same
// document replaces an earlier one; a gold example without a prediction
// counts as unanswered.
func (s *Service) Evaluate(examples []gold.Example, preds []prediction.Record) (Report, error) {
	if len(examples) == 0 {
		return Report{}, fmt.Errorf("no gold examples: %w", domain.ErrInvalidInput)
	}

	byID := make(map[domain.ExampleID]*prediction.Record, len(preds))
	for i := range preds {
		byID[preds[i].ExampleID] = &preds[i]
	}

	report := Report{Examples: len(examples)}
	seen := make(map[domain.ExampleID]struct{}, len(examples))
	long := make([]scored, 0, len(examples))
	short := make([]scored, 0, len(examples))
	goldLong, goldShort := 0, 0

	for i := range examples {
		ex := &examples[i]
		if _, dup := seen[ex.ExampleID]; dup {
			return Report{}, fmt.Errorf("duplicate gold example %s: %w", ex.ExampleID, domain.ErrInvalidInput)
		}
		seen[ex.ExampleID] = struct{}{}

		if ex.HasLongAnswer() {
			goldLong++
		}
		if ex.HasShortAnswer() {
			goldShort++
		}

		r, ok := byID[ex.ExampleID]
		if !ok {
			report.Missing++
			continue
		}
		long = append(long, scoreLong(ex, r))
		short = append(short, scoreShort(ex, r))
	}
	for id := range byID {
		if _, ok := seen[id]; !ok {
			report.Unmatched++
		}
	}

	report.Long = metricsAt(long, goldLong, s.threshold)
	report.Short = metricsAt(short, goldShort, s.threshold)
	report.BestLong = best(long, goldLong)
	report.BestShort = best(short, goldShort)

	if s.f1 != nil {
		s.f1.WithLabelValues(KindLong).Set(report.Long.F1)
		s.f1.WithLabelValues(KindShort).Set(report.Short.F1)
	}
	s.logger.Info("Evaluated predictions",
		zap.Int("examples", report.Examples),
		zap.Int("missing", report.Missing),
		zap.Float64("long_f1", report.Long.F1),
		zap.Float64("short_f1", report.Short.F1),
		zap.Float64("threshold", s.threshold),
	)
	return report, nil
}

func scoreLong(ex *gold.Example, r *prediction.Record) scored {
	answered := r.AnswerType != domain.AnswerNone && r.HasLongAnswer()
	return scored{
		score:    r.LongAnswerScore,
		answered: answered,
		correct:  answered && ex.HasLongAnswer() && ex.MatchesLong(r.LongAnswer),
	}
}

func scoreShort(ex *gold.Example, r *prediction.Record) scored {
	answered := r.AnswerType != domain.AnswerNone && (hasYesNo(r.YesNoAnswer) || hasSpan(r.ShortAnswers))
	return scored{
		score:    r.ShortAnswersScore,
		answered: answered,
		correct:  answered && ex.HasShortAnswer() && ex.MatchesShort(r.ShortAnswers, r.YesNoAnswer),
	}
}

func hasYesNo(y domain.YesNo) bool { return y != "" && y != domain.YesNoNone }

func hasSpan(spans []prediction.Span) bool {
	for _, s := range spans {
		if !s.IsEmpty() {
			return true
		}
	}
	return false
}

// metricsAt counts answers scoring at least threshold, matching the
// submission cutoff.
func metricsAt(answers []scored, goldAnswers int, threshold float64) Metrics {
	predicted, correct := 0, 0
	for _, a := range answers {
		if !a.answered || a.score < threshold {
			continue
		}
		predicted++
		if a.correct {
			correct++
		}
	}
	return newMetrics(threshold, goldAnswers, predicted, correct)
}

// best sweeps every distinct answer score as a threshold and returns the one
// with the highest F1; on ties the higher threshold wins.
func best(answers []scored, goldAnswers int) Metrics {
	given := make([]scored, 0, len(answers))
	for _, a := range answers {
		if a.answered {
			given = append(given, a)
		}
	}
	if len(given) == 0 {
		return newMetrics(0, goldAnswers, 0, 0)
	}
	sort.SliceStable(given, func(i, j int) bool { return given[i].score > given[j].score })

	var top Metrics
	found := false
	correct := 0
	for i, a := range given {
		if a.correct {
			correct++
		}
		if i+1 < len(given) && given[i+1].score == a.score {
			continue
		}
		m := newMetrics(a.score, goldAnswers, i+1, correct)
		if !found || m.F1 > top.F1 {
			top, found = m, true
		}
	}
	return top
}

func newMetrics(threshold float64, goldAnswers, predicted, correct int) Metrics {
	m := Metrics{
		Threshold:   threshold,
		GoldAnswers: goldAnswers,
		Predicted:   predicted,
		Correct:     correct,
		Precision:   ratio(correct, predicted),
		Recall:      ratio(correct, goldAnswers),
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
