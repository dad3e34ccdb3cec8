package decode

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// Defaults of the original evaluation setup.
const (
	DefaultNBestSize           = 20
	DefaultMaxAnswerLength     = 30
	DefaultMaxLongAnswerLength = 512
	DefaultLongNTop            = 5
	DefaultShortNTop           = 5
)

// Skip reasons reported for windows that do not contribute to a document.
const (
	SkipMissingResult = "missing_result"
	SkipOutOfRange    = "out_of_range"
)

// Options configures span enumeration.
type Options struct {
	NBestSize           int
	MaxAnswerLength     int
	MaxLongAnswerLength int
	LongNTop            int
	ShortNTop           int
}

// DefaultOptions returns the options of the original evaluation setup.
func DefaultOptions() Options {
	return Options{
		NBestSize:           DefaultNBestSize,
		MaxAnswerLength:     DefaultMaxAnswerLength,
		MaxLongAnswerLength: DefaultMaxLongAnswerLength,
		LongNTop:            DefaultLongNTop,
		ShortNTop:           DefaultShortNTop,
	}
}

// Validate checks that every limit is positive.
func (o Options) Validate() error {
	for name, v := range map[string]int{
		"n_best_size":            o.NBestSize,
		"max_answer_length":      o.MaxAnswerLength,
		"max_long_answer_length": o.MaxLongAnswerLength,
		"long_n_top":             o.LongNTop,
		"short_n_top":            o.ShortNTop,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d: %w", name, v, domain.ErrInvalidInput)
		}
	}
	return nil
}

// Service decodes raw results into per-document predictions.
type Service struct {
	opts      Options
	workers   int
	logger    *zap.Logger
	documents *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

// New creates a decoder.
func New(opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		opts:    opts,
		workers: runtime.GOMAXPROCS(0),
		logger:  logger,
	}
}

// WithWorkers bounds the number of documents decoded in parallel.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithMetrics sets counters for decoded documents (label "outcome") and skipped
// windows (label "reason"). Either may be nil.
func (s *Service) WithMetrics(documents, skipped *prometheus.CounterVec) *Service {
	s.documents = documents
	s.skipped = skipped
	return s
}

// Options returns the enumeration options.
func (s *Service) Options() Options { return s.opts }

// WithOptions returns a copy of the service using different options.
func (s *Service) WithOptions(opts Options) *Service {
	cp := *s
	cp.opts = opts
	return &cp
}

// DecodeAll decodes documents on a bounded worker pool and aggregates the
// records in document order.
func (s *Service) DecodeAll(ctx context.Context, docs []Document) (*prediction.Set, error) {
	records := make([]prediction.Record, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range docs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = s.Decode(&docs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}

	set := prediction.NewSet()
	for _, r := range records {
		set.Put(r)
	}
	return set, nil
}

// Decode selects the best long and short answer of one document.
func (s *Service) Decode(doc *Document) prediction.Record {
	var (
		longSpans  []scoredSpan
		shortSpans []scoredSpan
		typeSum    [domain.NumAnswerTypes]float64
		typeWidth  = domain.NumAnswerTypes
		baseline   = math.Inf(1)
		usable     int
	)

	longRules := spanRules{maxLength: s.opts.MaxLongAnswerLength}
	shortRules := spanRules{maxLength: s.opts.MaxAnswerLength}

	for wi, wr := range doc.Windows {
		if wr.Result == nil {
			s.skip(doc, wr, SkipMissingResult)
			continue
		}
		if n := wr.Window.Len(); n > 0 && wr.Result.MaxPosition() >= n {
			s.skip(doc, wr, SkipOutOfRange)
			continue
		}
		usable++

		types := wr.Result.AnswerTypeLogits()
		baseline = math.Min(baseline, types[domain.AnswerNone])
		typeWidth = min(typeWidth, len(types))
		for k, v := range types {
			typeSum[k] += v
		}

		switch wr.Result.Kind() {
		case rawresult.KindDense:
			d, _ := wr.Result.Dense()
			spans := denseSpans(wr.Window, wi, d, s.opts.NBestSize, shortRules)
			longSpans = append(longSpans, spans...)
			shortSpans = append(shortSpans, spans...)
		case rawresult.KindTopK:
			t, _ := wr.Result.TopK()
			longSpans = append(longSpans,
				topKSpans(wr.Window, wi, t.LongStart, t.LongEnd, t.LongCLS, s.opts.LongNTop, longRules)...)
			shortSpans = append(shortSpans,
				topKSpans(wr.Window, wi, t.ShortStart, t.ShortEnd, t.ShortCLS, s.opts.ShortNTop, shortRules)...)
		}
	}

	if usable == 0 {
		return s.noAnswer(doc.ExampleID)
	}

	longIdx, longBest, ok := selectLong(doc.Candidates, longSpans)
	if !ok {
		return s.noAnswer(doc.ExampleID)
	}
	long := doc.Candidates.At(longIdx)

	rec := prediction.Record{
		ExampleID:         doc.ExampleID,
		LongAnswer:        prediction.Span{StartToken: long.StartToken, EndToken: long.EndToken},
		LongAnswerScore:   longBest.score - baseline,
		ShortAnswers:      []prediction.Span{},
		ShortAnswersScore: domain.NoAnswerScore,
		YesNoAnswer:       domain.YesNoNone,
		AnswerType:        argmax(typeSum[:typeWidth]),
	}

	shortBest, hasShort := selectShort(long, shortSpans)
	if hasShort {
		rec.ShortAnswersScore = shortBest.score - baseline
	}

	if yn := yesNo(typeSum[:typeWidth]); yn != domain.YesNoNone {
		rec.YesNoAnswer = yn
		if !hasShort {
			rec.ShortAnswersScore = rec.LongAnswerScore
		}
	} else if hasShort {
		rec.ShortAnswers = append(rec.ShortAnswers, prediction.Span{
			StartToken: shortBest.origStart,
			EndToken:   shortBest.origEnd,
		})
	}

	s.count("answer")
	return rec
}

func (s *Service) noAnswer(id domain.ExampleID) prediction.Record {
	s.count("no_answer")
	return prediction.NoAnswer(id)
}

func (s *Service) count(outcome string) {
	if s.documents != nil {
		s.documents.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) skip(doc *Document, wr WindowResult, reason string) {
	if s.skipped != nil {
		s.skipped.WithLabelValues(reason).Inc()
	}
	s.logger.Warn("Skipping window",
		zap.String("example_id", doc.ExampleID.String()),
		zap.String("unique_id", string(wr.Window.UniqueID)),
		zap.String("reason", reason),
	)
}

// selectLong returns the candidate enclosing the best-scoring span start.
func selectLong(cands *candidate.Set, spans []scoredSpan) (int, scoredSpan, bool) {
	bestIdx := -1
	var best scoredSpan
	for _, sp := range spans {
		idx, ok := cands.Enclosing(sp.origStart)
		if !ok {
			continue
		}
		if bestIdx < 0 || sp.better(best) {
			bestIdx, best = idx, sp
		}
	}
	return bestIdx, best, bestIdx >= 0
}

// selectShort returns the best span lying entirely inside the long answer.
func selectShort(long candidate.Candidate, spans []scoredSpan) (scoredSpan, bool) {
	found := false
	var best scoredSpan
	for _, sp := range spans {
		if !long.ContainsSpan(sp.origStart, sp.origEnd) {
			continue
		}
		if !found || sp.better(best) {
			best, found = sp, true
		}
	}
	return best, found
}

// argmax returns the first index holding the largest value.
func argmax(v []float64) domain.AnswerType {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return domain.AnswerType(best)
}

// yesNo returns YES or NO when either outranks SHORT in the aggregated logits.
func yesNo(types []float64) domain.YesNo {
	yes, no, short := types[domain.AnswerYes], types[domain.AnswerNo], types[domain.AnswerShort]
	switch {
	case yes > short && yes >= no:
		return domain.YesNoYes
	case no > short && no > yes:
		return domain.YesNoNo
	default:
		return domain.YesNoNone
	}
}
