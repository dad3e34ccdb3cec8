package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
	"github.com/kailas-cloud/nqdecode/internal/usecase/decode"
)

// Sources label the decode duration histogram.
const (
	SourceBatch = "batch"
	SourceHTTP  = "http"
)

// Input is one decode request: documents, their windows and whatever raw
// results the caller already has.
type Input struct {
	Index   *candidate.Index
	Windows []feature.Window
	Results []rawresult.Result
	Options *decode.Options // nil keeps the decoder defaults
	Source  string
}

// Service runs the decode pipeline: result resolution, assembly, decode.
type Service struct {
	decoder  *decode.Service
	store    ResultStore
	duration *prometheus.HistogramVec
	logger   *zap.Logger
}

// New creates a pipeline over a decoder.
func New(decoder *decode.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{decoder: decoder, logger: logger}
}

// WithStore sets the raw result store used to fill results missing from the input.
func (s *Service) WithStore(store ResultStore) *Service {
	s.store = store
	return s
}

// WithMetrics sets the decode duration histogram (label "source").
func (s *Service) WithMetrics(duration *prometheus.HistogramVec) *Service {
	s.duration = duration
	return s
}

// Options returns the decoder defaults.
func (s *Service) Options() decode.Options { return s.decoder.Options() }

// HasStore reports whether a result store is configured.
func (s *Service) HasStore() bool { return s.store != nil }

// Store returns the configured result store or nil.
func (s *Service) Store() ResultStore { return s.store }

// Predict decodes every document of the input index.
func (s *Service) Predict(ctx context.Context, in Input) (*prediction.Set, error) {
	start := time.Now()

	decoder := s.decoder
	if in.Options != nil {
		if err := in.Options.Validate(); err != nil {
			return nil, err
		}
		decoder = decoder.WithOptions(*in.Options)
	}

	results, err := s.resolve(ctx, in.Windows, in.Results)
	if err != nil {
		return nil, err
	}

	docs, err := decode.Assemble(in.Index, in.Windows, results)
	if err != nil {
		return nil, fmt.Errorf("assemble documents: %w", err)
	}

	set, err := decoder.DecodeAll(ctx, docs)
	if err != nil {
		return nil, err //nolint:wrapcheck // already wrapped by the decoder
	}

	if s.duration != nil && in.Source != "" {
		s.duration.WithLabelValues(in.Source).Observe(time.Since(start).Seconds())
	}
	s.logger.Debug("Decoded documents",
		zap.Int("documents", set.Len()),
		zap.Int("windows", len(in.Windows)),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return set, nil
}

// resolve keys the input results by unique id and fills windows without a
// result from the store. A later result for the same id replaces an earlier one.
func (s *Service) resolve(
	ctx context.Context,
	windows []feature.Window,
	given []rawresult.Result,
) (map[feature.UniqueID]rawresult.Result, error) {
	results := make(map[feature.UniqueID]rawresult.Result, len(windows))
	for _, r := range given {
		results[r.UniqueID()] = r
	}
	if s.store == nil {
		return results, nil
	}

	var missing []feature.UniqueID
	for i := range windows {
		if _, ok := results[windows[i].UniqueID]; !ok {
			missing = append(missing, windows[i].UniqueID)
		}
	}
	if len(missing) == 0 {
		return results, nil
	}

	stored, err := s.store.Lookup(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("lookup stored results: %w", err)
	}
	for id, r := range stored {
		results[id] = r
	}
	s.logger.Debug("Filled results from store",
		zap.Int("requested", len(missing)),
		zap.Int("found", len(stored)),
	)
	return results, nil
}
