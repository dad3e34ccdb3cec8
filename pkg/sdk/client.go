package nqdecode

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kailas-cloud/nqdecode/internal/db"
	dbBolt "github.com/kailas-cloud/nqdecode/internal/db/bolt"
	dbRedis "github.com/kailas-cloud/nqdecode/internal/db/redis"
	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
	"github.com/kailas-cloud/nqdecode/internal/repository/nqfile"
	"github.com/kailas-cloud/nqdecode/internal/repository/resultstore"
	"github.com/kailas-cloud/nqdecode/internal/usecase/decode"
	healthuc "github.com/kailas-cloud/nqdecode/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/nqdecode/internal/usecase/pipeline"
	submissionuc "github.com/kailas-cloud/nqdecode/internal/usecase/submission"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, swapped for fakes in tests.
type predictUseCase interface {
	Predict(ctx context.Context, in pipelineuc.Input) (*prediction.Set, error)
}

type resultRepo interface {
	PutMany(ctx context.Context, results []rawresult.Result) (int, error)
	Get(ctx context.Context, id feature.UniqueID) (rawresult.Result, error)
	Delete(ctx context.Context, id feature.UniqueID) error
	IDs(ctx context.Context) ([]feature.UniqueID, error)
}

// Client is the nqdecode SDK entry point.
type Client struct {
	store        db.Store // nil without a result store
	predictSvc   predictUseCase
	results      resultRepo // nil without a result store
	submission   *submissionuc.Service
	reader       *nqfile.Reader
	healthSvc    healthUseCase
	topLevelOnly bool
	obs          *observer
}

// New creates a Client. With a store option it connects and waits until
// the store answers, using ctx for the readiness check. Without one the
// client decodes only the results passed to Predict.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	decodeOpts := decodeOptions(cfg)
	if err := decodeOpts.Validate(); err != nil {
		return nil, fmt.Errorf("nqdecode: %w", err)
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("nqdecode: result store not ready: %w", err)
		}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	c, err := wireClient(store, cfg, decodeOpts, obs)
	if err != nil && store != nil {
		store.Close()
	}
	return c, err
}

// decodeOptions overlays the configured limits on the defaults.
func decodeOptions(cfg *clientConfig) decode.Options {
	opts := decode.DefaultOptions()
	for _, o := range []struct {
		src int
		dst *int
	}{
		{cfg.nBestSize, &opts.NBestSize},
		{cfg.maxAnswerLength, &opts.MaxAnswerLength},
		{cfg.maxLongAnswerLength, &opts.MaxLongAnswerLength},
		{cfg.longNTop, &opts.LongNTop},
		{cfg.shortNTop, &opts.ShortNTop},
	} {
		if o.src != 0 {
			*o.dst = o.src
		}
	}
	return opts
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case driverNone:
		return nil, nil
	case driverValkey, driverRedis:
		if len(cfg.addrs) == 0 || cfg.addrs[0] == "" {
			return nil, fmt.Errorf("nqdecode: %s address required", cfg.driver)
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("nqdecode: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case driverBolt:
		s, err := dbBolt.NewStore(dbBolt.Config{Path: cfg.path})
		if err != nil {
			return nil, fmt.Errorf("nqdecode: create bolt store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("nqdecode: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig, opts decode.Options, obs *observer) (*Client, error) {
	decoder := decode.New(opts, nil)
	if cfg.workers > 0 {
		decoder = decoder.WithWorkers(cfg.workers)
	}
	pipeline := pipelineuc.New(decoder, nil)

	threshold := submissionuc.DefaultThreshold
	if cfg.threshold != nil {
		threshold = *cfg.threshold
	}

	c := &Client{
		predictSvc:   pipeline,
		submission:   submissionuc.New(threshold, nil),
		reader:       nqfile.NewReader(!cfg.allCandidates, nil),
		topLevelOnly: !cfg.allCandidates,
		obs:          obs,
	}

	if store == nil {
		// Pass nil interface (not typed nil pointer!) so health skips the store check
		c.healthSvc = healthuc.New(nil)
		return c, nil
	}

	repo, err := resultstore.New(store, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("nqdecode: create result repository: %w", err)
	}
	repo.WithTTL(cfg.ttl)
	pipeline.WithStore(repo)

	c.store = store
	c.results = repo
	c.healthSvc = healthuc.New(store)
	return c, nil
}

// Close releases the result store, if any.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks result store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if c.store == nil {
		return ErrNoStore
	}
	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Predict decodes every input document. Documents come back in input order;
// a document without a usable window gets a no-answer prediction.
func (c *Client) Predict(ctx context.Context, in Input) (preds []Prediction, err error) {
	start := time.Now()
	defer func() { c.obs.observe("predict", start, err) }()

	index, err := c.index(in.Documents)
	if err != nil {
		return nil, err
	}
	for i := range in.Windows {
		if err = in.Windows[i].Validate(); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
	}

	set, err := c.predictSvc.Predict(ctx, pipelineuc.Input{
		Index:   index,
		Windows: in.Windows,
		Results: in.Results,
	})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	preds = set.Records()
	c.obs.predicted(preds)
	return preds, nil
}

func (c *Client) index(docs []Document) (*candidate.Index, error) {
	index := candidate.NewIndex()
	for i, d := range docs {
		if d.ExampleID == "" {
			return nil, fmt.Errorf("document %d: example_id is required: %w", i, domain.ErrInvalidInput)
		}
		if _, dup := index.Get(d.ExampleID); dup {
			return nil, fmt.Errorf("document %d: duplicate example_id %s: %w", i, d.ExampleID, domain.ErrInvalidInput)
		}
		index.Put(d.ExampleID, candidate.NewSet(d.Candidates, c.topLevelOnly))
	}
	return index, nil
}

// Submission renders two rows per prediction, long first.
func (c *Client) Submission(preds []Prediction) []Row {
	return c.submission.Rows(preds)
}

// SubmissionFor renders rows in the order of a sample submission's ids.
// An id whose document has no prediction is ErrNotFound.
func (c *Client) SubmissionFor(preds []Prediction, sampleIDs []string) ([]Row, error) {
	rows, err := c.submission.RowsFor(preds, sampleIDs)
	if err != nil {
		return nil, fmt.Errorf("submission: %w", err)
	}
	return rows, nil
}

// WriteSubmission writes rows as a submission CSV with a header line.
func (c *Client) WriteSubmission(w io.Writer, rows []Row) error {
	if err := nqfile.WriteSubmission(w, rows); err != nil {
		return fmt.Errorf("write submission: %w", err)
	}
	return nil
}

// WritePredictions writes predictions as the JSON predictions file.
func (c *Client) WritePredictions(w io.Writer, preds []Prediction) error {
	if err := nqfile.WritePredictions(w, prediction.File{Predictions: preds}); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// ReadDocuments reads an evaluation JSONL stream of documents with their
// long answer candidates.
func (c *Client) ReadDocuments(r io.Reader) ([]Document, error) {
	index, err := c.reader.Candidates(r)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	docs := make([]Document, 0, index.Len())
	for _, id := range index.IDs() {
		set, _ := index.Get(id)
		docs = append(docs, Document{ExampleID: id, Candidates: set.Candidates()})
	}
	return docs, nil
}

// ReadFeatures reads a JSONL stream of feature windows.
func (c *Client) ReadFeatures(r io.Reader) ([]Window, error) {
	windows, err := c.reader.Features(r)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	return windows, nil
}

// ReadResults reads a JSONL stream of raw results. Malformed records are skipped.
func (c *Client) ReadResults(r io.Reader) ([]RawResult, error) {
	results, err := c.reader.Results(r)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return results, nil
}

// PutResults stores raw results, replacing earlier ones with the same id.
func (c *Client) PutResults(ctx context.Context, results []RawResult) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("put_results", start, err) }()

	if c.results == nil {
		return 0, ErrNoStore
	}
	n, err = c.results.PutMany(ctx, results)
	if err != nil {
		return n, fmt.Errorf("put results: %w", err)
	}
	return n, nil
}

// Result returns the stored raw result of a window.
func (c *Client) Result(ctx context.Context, id UniqueID) (res RawResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get_result", start, err) }()

	if c.results == nil {
		return RawResult{}, ErrNoStore
	}
	res, err = c.results.Get(ctx, id)
	if err != nil {
		return RawResult{}, fmt.Errorf("get result %s: %w", id, err)
	}
	return res, nil
}

// DeleteResult removes a stored raw result.
func (c *Client) DeleteResult(ctx context.Context, id UniqueID) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete_result", start, err) }()

	if c.results == nil {
		return ErrNoStore
	}
	if err = c.results.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete result %s: %w", id, err)
	}
	return nil
}

// ResultIDs lists the ids of all stored raw results.
func (c *Client) ResultIDs(ctx context.Context) (ids []UniqueID, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list_results", start, err) }()

	if c.results == nil {
		return nil, ErrNoStore
	}
	ids, err = c.results.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return ids, nil
}
