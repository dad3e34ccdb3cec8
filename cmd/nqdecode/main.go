package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/config"
	"github.com/kailas-cloud/nqdecode/internal/db"
	dbBolt "github.com/kailas-cloud/nqdecode/internal/db/bolt"
	dbRedis "github.com/kailas-cloud/nqdecode/internal/db/redis"
	logpkg "github.com/kailas-cloud/nqdecode/internal/logger"
	"github.com/kailas-cloud/nqdecode/internal/metrics"
	"github.com/kailas-cloud/nqdecode/internal/repository/nqfile"
	"github.com/kailas-cloud/nqdecode/internal/repository/resultstore"
	chiTransport "github.com/kailas-cloud/nqdecode/internal/transport/chi"
	"github.com/kailas-cloud/nqdecode/internal/usecase/decode"
	evaluateuc "github.com/kailas-cloud/nqdecode/internal/usecase/evaluate"
	healthuc "github.com/kailas-cloud/nqdecode/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/nqdecode/internal/usecase/pipeline"
	submissionuc "github.com/kailas-cloud/nqdecode/internal/usecase/submission"
	"github.com/kailas-cloud/nqdecode/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(logpkg.Options{Env: env, Level: cfg.Logging.Level, Mode: cfg.Decode.Mode})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting nqdecode",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.String("mode", cfg.Decode.Mode),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterDecodeMetrics()
	metrics.RegisterHTTPMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Fatal("nqdecode failed", zap.Error(err))
	}
}

// run wires the configured mode and executes it. Every resource it opens is
// released before it returns.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	if store != nil {
		defer store.Close()
		logger.Info("Connected to result store", zap.String("driver", cfg.Database.Driver))
	}

	// Composition root
	decoder := decode.New(decode.Options{
		NBestSize:           cfg.Decode.NBestSize,
		MaxAnswerLength:     cfg.Decode.MaxAnswerLength,
		MaxLongAnswerLength: cfg.Decode.MaxLongAnswerLength,
		LongNTop:            cfg.Decode.LongNTop,
		ShortNTop:           cfg.Decode.ShortNTop,
	}, logger).
		WithWorkers(cfg.Decode.Workers).
		WithMetrics(metrics.DocumentsDecodedTotal, metrics.WindowsSkippedTotal)
	if err := decoder.Options().Validate(); err != nil {
		return fmt.Errorf("invalid decode options: %w", err)
	}

	pipeline := pipelineuc.New(decoder, logger).WithMetrics(metrics.DecodeDuration)

	var results *resultstore.Repo
	if store != nil {
		results, err = resultstore.New(store, metrics.ResultStoreTotal, logger)
		if err != nil {
			return fmt.Errorf("create result repository: %w", err)
		}
		results.WithTTL(time.Duration(cfg.Database.TTLSec) * time.Second)
		pipeline.WithStore(results)
	}

	sub := submissionuc.New(*cfg.Output.Threshold, logger)
	reader := nqfile.NewReader(*cfg.Decode.TopLevelOnly, logger).WithMetrics(metrics.WindowsSkippedTotal)
	batch := pipelineuc.NewBatch(pipeline, reader, sub, logger)
	files := pipelineuc.Files{
		EvalPath:             cfg.Input.EvalPath,
		FeaturesPath:         cfg.Input.FeaturesPath,
		ResultsPath:          cfg.Input.ResultsPath,
		PredictionsPath:      cfg.Output.PredictionsPath,
		SubmissionPath:       cfg.Output.SubmissionPath,
		SampleSubmissionPath: cfg.Output.SampleSubmissionPath,
		MetricsPath:          cfg.Output.MetricsPath,
		Persist:              cfg.Results.Persist,
	}

	switch cfg.Decode.Mode {
	case config.ModeBatch:
		if err := batch.Run(ctx, files); err != nil {
			return fmt.Errorf("batch decode: %w", err)
		}
		logger.Info("Batch decode finished")
	case config.ModeSubmit:
		if err := batch.Submit(ctx, files); err != nil {
			return fmt.Errorf("submission: %w", err)
		}
		logger.Info("Submission written")
	case config.ModeEval:
		evaluator := evaluateuc.New(*cfg.Output.Threshold, logger).WithMetrics(metrics.EvalF1)
		report, err := batch.WithEvaluator(evaluator).Evaluate(ctx, files)
		if err != nil {
			return fmt.Errorf("evaluation: %w", err)
		}
		logger.Info("Evaluation finished",
			zap.Float64("long_f1", report.Long.F1),
			zap.Float64("short_f1", report.Short.F1),
			zap.Float64("best_long_threshold", report.BestLong.Threshold),
			zap.Float64("best_short_threshold", report.BestShort.Threshold),
		)
	case config.ModeServe:
		// Pass nil interfaces (not typed nil pointers!) when no store is configured.
		var repo chiTransport.ResultRepo
		var pinger healthuc.DBPinger
		if results != nil {
			repo = results
			pinger = store
		}
		server := chiTransport.NewServer(pipeline, repo, sub, healthuc.New(pinger), logger).
			WithTopLevelOnly(*cfg.Decode.TopLevelOnly).
			WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes).
			WithMetrics(metrics.WindowsSkippedTotal)
		return serve(ctx, cfg, chiTransport.NewRouter(server, chiTransport.RouterConfig{APIKeys: cfg.Auth.APIKeys}), logger)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Decode.Mode)
	}
	return nil
}

// openStore connects the configured result store and waits until it answers.
// It returns nil for driver "none".
func openStore(ctx context.Context, cfg config.Config) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverRedis, config.DriverValkey:
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
	case config.DriverBolt:
		store, err = dbBolt.NewStore(dbBolt.Config{Path: cfg.Database.Path})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s store not ready: %w", cfg.Database.Driver, err)
	}
	return store, nil
}

func serve(ctx context.Context, cfg config.Config, handler http.Handler, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
