package nqfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/gold"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// SkipMalformed labels result records dropped while reading.
const SkipMalformed = "malformed"

// evalExample is the part of an evaluation line the decoder needs.
// document_text is never decoded; annotations are read by Gold.
type evalExample struct {
	ExampleID  domain.ExampleID      `json:"example_id"`
	Candidates []candidate.Candidate `json:"long_answer_candidates"`
}

// Reader decodes the JSONL inputs of a run.
type Reader struct {
	topLevelOnly bool
	skipped      *prometheus.CounterVec
	logger       *zap.Logger
}

// NewReader creates a reader. topLevelOnly restricts long-answer lookup to
// candidates flagged top_level.
func NewReader(topLevelOnly bool, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{topLevelOnly: topLevelOnly, logger: logger}
}

// WithMetrics sets the counter (label "reason") for dropped result records.
func (r *Reader) WithMetrics(skipped *prometheus.CounterVec) *Reader {
	r.skipped = skipped
	return r
}

// Candidates builds the candidate index from an evaluation JSONL stream.
// A repeated example id is an error.
func (r *Reader) Candidates(in io.Reader) (*candidate.Index, error) {
	index := candidate.NewIndex()
	dec := json.NewDecoder(in)
	for line := 1; ; line++ {
		var ex evalExample
		if err := dec.Decode(&ex); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("evaluation record %d: %w", line, err)
		}
		if ex.ExampleID == "" {
			return nil, fmt.Errorf("evaluation record %d: example_id is required: %w", line, domain.ErrInvalidInput)
		}
		if _, dup := index.Get(ex.ExampleID); dup {
			return nil, fmt.Errorf("evaluation record %d: duplicate example_id %s: %w",
				line, ex.ExampleID, domain.ErrInvalidInput)
		}
		index.Put(ex.ExampleID, candidate.NewSet(ex.Candidates, r.topLevelOnly))
	}
	r.logger.Debug("Loaded candidate index", zap.Int("documents", index.Len()))
	return index, nil
}

// Gold decodes the annotations of an evaluation JSONL stream.
// A repeated example id is an error.
func (r *Reader) Gold(in io.Reader) ([]gold.Example, error) {
	var examples []gold.Example
	seen := make(map[domain.ExampleID]struct{})
	dec := json.NewDecoder(in)
	for line := 1; ; line++ {
		var ex gold.Example
		if err := dec.Decode(&ex); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("evaluation record %d: %w", line, err)
		}
		if ex.ExampleID == "" {
			return nil, fmt.Errorf("evaluation record %d: example_id is required: %w", line, domain.ErrInvalidInput)
		}
		if _, dup := seen[ex.ExampleID]; dup {
			return nil, fmt.Errorf("evaluation record %d: duplicate example_id %s: %w",
				line, ex.ExampleID, domain.ErrInvalidInput)
		}
		seen[ex.ExampleID] = struct{}{}
		examples = append(examples, ex)
	}
	r.logger.Debug("Loaded gold annotations", zap.Int("documents", len(examples)))
	return examples, nil
}

// Features decodes feature windows. Every window is validated.
func (r *Reader) Features(in io.Reader) ([]feature.Window, error) {
	var windows []feature.Window
	dec := json.NewDecoder(in)
	for line := 1; ; line++ {
		var w feature.Window
		if err := dec.Decode(&w); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("feature record %d: %w", line, err)
		}
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("feature record %d: %w", line, err)
		}
		windows = append(windows, w)
	}
	r.logger.Debug("Loaded feature windows", zap.Int("windows", len(windows)))
	return windows, nil
}

// Results decodes raw results. Records that parse as JSON but fail validation
// are dropped with a warning; broken JSON aborts.
func (r *Reader) Results(in io.Reader) ([]rawresult.Result, error) {
	var results []rawresult.Result
	dec := json.NewDecoder(in)
	for line := 1; ; line++ {
		var res rawresult.Result
		err := dec.Decode(&res)
		switch {
		case err == nil:
			results = append(results, res)
		case errors.Is(err, io.EOF):
			r.logger.Debug("Loaded raw results", zap.Int("results", len(results)))
			return results, nil
		case errors.Is(err, domain.ErrMalformedResult):
			r.logger.Warn("Skipping malformed result", zap.Int("record", line), zap.Error(err))
			if r.skipped != nil {
				r.skipped.WithLabelValues(SkipMalformed).Inc()
			}
		default:
			return nil, fmt.Errorf("result record %d: %w", line, err)
		}
	}
}

// Predictions decodes a predictions JSON document.
func (r *Reader) Predictions(in io.Reader) (prediction.File, error) {
	var f prediction.File
	if err := json.NewDecoder(in).Decode(&f); err != nil {
		return prediction.File{}, fmt.Errorf("decode predictions: %w", err)
	}
	return f, nil
}
