package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
	"github.com/kailas-cloud/nqdecode/internal/repository/nqfile"
	"github.com/kailas-cloud/nqdecode/internal/usecase/evaluate"
	"github.com/kailas-cloud/nqdecode/internal/usecase/submission"
)

// Files names the inputs and outputs of a batch run. Empty optional paths
// skip their step.
type Files struct {
	EvalPath             string
	FeaturesPath         string
	ResultsPath          string // optional when a store is configured
	PredictionsPath      string
	SubmissionPath       string // optional
	SampleSubmissionPath string // optional row order
	MetricsPath          string // optional eval report
	Persist              bool   // write results read from ResultsPath into the store
}

// Batch runs the file based modes.
type Batch struct {
	pipeline   *Service
	reader     *nqfile.Reader
	submission *submission.Service
	evaluator  *evaluate.Service
	logger     *zap.Logger
}

// NewBatch creates a batch runner.
func NewBatch(p *Service, reader *nqfile.Reader, sub *submission.Service, logger *zap.Logger) *Batch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{pipeline: p, reader: reader, submission: sub, logger: logger}
}

// WithEvaluator enables Evaluate.
func (b *Batch) WithEvaluator(e *evaluate.Service) *Batch {
	b.evaluator = e
	return b
}

// Run decodes the input files and writes predictions and, when requested,
// the submission.
func (b *Batch) Run(ctx context.Context, files Files) error {
	index, err := readFile(files.EvalPath, b.reader.Candidates)
	if err != nil {
		return err
	}
	windows, err := readFile(files.FeaturesPath, b.reader.Features)
	if err != nil {
		return err
	}

	var results []rawresult.Result
	if files.ResultsPath != "" {
		if results, err = readFile(files.ResultsPath, b.reader.Results); err != nil {
			return err
		}
	}
	b.logger.Info("Loaded inputs",
		zap.Int("documents", index.Len()),
		zap.Int("windows", len(windows)),
		zap.Int("results", len(results)),
	)

	if files.Persist {
		if err := b.persist(ctx, results); err != nil {
			return err
		}
	}

	set, err := b.pipeline.Predict(ctx, Input{
		Index:   index,
		Windows: windows,
		Results: results,
		Source:  SourceBatch,
	})
	if err != nil {
		return err
	}

	if err := writeFile(files.PredictionsPath, func(w io.Writer) error {
		return nqfile.WritePredictions(w, set.File())
	}); err != nil {
		return err
	}
	b.logger.Info("Wrote predictions",
		zap.String("path", files.PredictionsPath),
		zap.Int("documents", set.Len()),
	)

	if files.SubmissionPath == "" {
		return nil
	}
	return b.writeSubmission(set.Records(), files)
}

// Submit converts an existing predictions file into a submission.
func (b *Batch) Submit(_ context.Context, files Files) error {
	f, err := readFile(files.PredictionsPath, b.reader.Predictions)
	if err != nil {
		return err
	}
	b.logger.Info("Loaded predictions", zap.Int("documents", len(f.Predictions)))
	return b.writeSubmission(f.Predictions, files)
}

// Evaluate scores a predictions file against the annotations of the
// evaluation file and writes the report to MetricsPath when set.
func (b *Batch) Evaluate(_ context.Context, files Files) (evaluate.Report, error) {
	if b.evaluator == nil {
		return evaluate.Report{}, fmt.Errorf("evaluate: no evaluator configured")
	}
	examples, err := readFile(files.EvalPath, b.reader.Gold)
	if err != nil {
		return evaluate.Report{}, err
	}
	f, err := readFile(files.PredictionsPath, b.reader.Predictions)
	if err != nil {
		return evaluate.Report{}, err
	}

	report, err := b.evaluator.Evaluate(examples, f.Predictions)
	if err != nil {
		return evaluate.Report{}, fmt.Errorf("evaluate: %w", err)
	}
	if files.MetricsPath == "" {
		return report, nil
	}

	if err := writeFile(files.MetricsPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}); err != nil {
		return evaluate.Report{}, err
	}
	b.logger.Info("Wrote evaluation report", zap.String("path", files.MetricsPath))
	return report, nil
}

func (b *Batch) persist(ctx context.Context, results []rawresult.Result) error {
	store := b.pipeline.Store()
	if store == nil {
		return fmt.Errorf("persist results: %w", domain.ErrNoStore)
	}
	n, err := store.PutMany(ctx, results)
	if err != nil {
		return fmt.Errorf("persist results (%d written): %w", n, err)
	}
	b.logger.Info("Persisted raw results", zap.Int("results", n))
	return nil
}

func (b *Batch) writeSubmission(records []prediction.Record, files Files) error {
	rows := b.submission.Rows(records)
	if files.SampleSubmissionPath != "" {
		ids, err := readFile(files.SampleSubmissionPath, nqfile.SampleSubmissionIDs)
		if err != nil {
			return err
		}
		if rows, err = b.submission.RowsFor(records, ids); err != nil {
			return fmt.Errorf("order submission rows: %w", err)
		}
	}

	if err := writeFile(files.SubmissionPath, func(w io.Writer) error {
		return nqfile.WriteSubmission(w, rows)
	}); err != nil {
		return err
	}
	b.logger.Info("Wrote submission",
		zap.String("path", files.SubmissionPath),
		zap.Int("rows", len(rows)),
		zap.Float64("threshold", b.submission.Threshold()),
	)
	return nil
}

func readFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := nqfile.Open(path)
	if err != nil {
		return zero, err //nolint:wrapcheck // carries the path
	}
	defer func() { _ = f.Close() }()

	v, err := decode(f)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

func writeFile(path string, encode func(io.Writer) error) (err error) {
	f, err := nqfile.Create(path)
	if err != nil {
		return err //nolint:wrapcheck // carries the path
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := encode(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
