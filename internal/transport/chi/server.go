package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
	logpkg "github.com/kailas-cloud/nqdecode/internal/logger"
	"github.com/kailas-cloud/nqdecode/internal/repository/nqfile"
	healthuc "github.com/kailas-cloud/nqdecode/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/nqdecode/internal/usecase/pipeline"
	submissionuc "github.com/kailas-cloud/nqdecode/internal/usecase/submission"
	"github.com/kailas-cloud/nqdecode/internal/version"
)

const defaultMaxBodyBytes = 64 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// ResultRepo is the raw result store as seen by the results endpoints.
type ResultRepo interface {
	PutMany(ctx context.Context, results []rawresult.Result) (int, error)
	Get(ctx context.Context, id feature.UniqueID) (rawresult.Result, error)
	Delete(ctx context.Context, id feature.UniqueID) error
	IDs(ctx context.Context) ([]feature.UniqueID, error)
}

// Server serves the decode API.
type Server struct {
	pipeline      *pipelineuc.Service
	results       ResultRepo
	submission    *submissionuc.Service
	health        *healthuc.Service
	topLevelOnly  bool
	maxBodyBytes  int64
	skipped       *prometheus.CounterVec
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. results may be nil when no store is
// configured; the results endpoints then answer 501.
func NewServer(
	pipeline *pipelineuc.Service,
	results ResultRepo,
	submission *submissionuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if submission == nil {
		submission = submissionuc.New(submissionuc.DefaultThreshold, logger)
	}
	s := &Server{
		pipeline:     pipeline,
		results:      results,
		submission:   submission,
		health:       health,
		topLevelOnly: true,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		inputHandler(domain.ErrMalformedResult, ErrorCodeMalformedResult),
		inputHandler(domain.ErrCandidatesNotFound, ErrorCodeCandidatesNotFound),
		inputHandler(domain.ErrInvalidInput, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeResultNotFound),
		sentinelHandler(domain.ErrNoStore, http.StatusNotImplemented, ErrorCodeStoreNotConfigured),
	}
	return s
}

// WithTopLevelOnly sets whether request candidates are restricted to top-level ones.
func (s *Server) WithTopLevelOnly(v bool) *Server {
	s.topLevelOnly = v
	return s
}

// WithMaxBodyBytes caps request bodies.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// WithMetrics sets the counter (label "reason") for result records dropped
// from decode requests.
func (s *Server) WithMetrics(skipped *prometheus.CounterVec) *Server {
	s.skipped = skipped
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Put("/results", s.PutResults)
		r.Get("/results", s.ListResults)
		r.Get("/results/{unique_id}", s.GetResult)
		r.Delete("/results/{unique_id}", s.DeleteResult)
		r.Post("/predictions", s.Predict)
		r.Post("/submission", s.Submission)
	})
}

// PutResults handles PUT /v1/results.
func (s *Server) PutResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.handleDomainError(w, r, domain.ErrNoStore)
		return
	}

	var req PutResultsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "results must not be empty")
		return
	}

	n, err := s.results.PutMany(r.Context(), req.Results)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PutResultsResponse{Stored: n})
}

// ListResults handles GET /v1/results.
func (s *Server) ListResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.handleDomainError(w, r, domain.ErrNoStore)
		return
	}

	ids, err := s.results.IDs(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []feature.UniqueID{}
	}

	writeJSON(w, http.StatusOK, ResultIDsResponse{UniqueIDs: ids, Count: len(ids)})
}

// GetResult handles GET /v1/results/{unique_id}.
func (s *Server) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUniqueID(w, r)
	if !ok {
		return
	}
	if s.results == nil {
		s.handleDomainError(w, r, domain.ErrNoStore)
		return
	}

	res, err := s.results.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// DeleteResult handles DELETE /v1/results/{unique_id}.
func (s *Server) DeleteResult(w http.ResponseWriter, r *http.Request) {
	id, ok := bindUniqueID(w, r)
	if !ok {
		return
	}
	if s.results == nil {
		s.handleDomainError(w, r, domain.ErrNoStore)
		return
	}

	if err := s.results.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Predict handles POST /v1/predictions.
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	var params PredictionsParams
	if !bindPredictionsParams(w, r, &params) {
		return
	}

	set, ok := s.decode(w, r, params)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, set.File())
}

// Submission handles POST /v1/submission.
func (s *Server) Submission(w http.ResponseWriter, r *http.Request) {
	var params SubmissionParams
	if !bindPredictionsParams(w, r, &params.PredictionsParams) {
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "threshold", r.URL.Query(), &params.Threshold); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			fmt.Sprintf("Invalid format for parameter threshold: %s", err))
		return
	}

	set, ok := s.decode(w, r, params.PredictionsParams)
	if !ok {
		return
	}

	sub := s.submission
	if params.Threshold != nil {
		sub = submissionuc.New(*params.Threshold, s.logger)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := nqfile.WriteSubmission(w, sub.Rows(set.Records())); err != nil {
		logpkg.FromContextOr(r.Context(), s.logger).Error("write submission", zap.Error(err))
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decode runs the pipeline for a decode request body. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, params PredictionsParams) (*prediction.Set, bool) {
	var req decodeRequestBody
	if !s.decodeBody(w, r, &req) {
		return nil, false
	}
	results, err := s.decodeResults(r.Context(), req.Results)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}

	index, err := s.buildIndex(req.Documents)
	if err != nil {
		s.handleDomainError(w, r, err)
		return nil, false
	}
	for i := range req.Features {
		if err := req.Features[i].Validate(); err != nil {
			s.handleDomainError(w, r, fmt.Errorf("feature %d: %w", i, err))
			return nil, false
		}
	}

	in := pipelineuc.Input{
		Index:   index,
		Windows: req.Features,
		Results: results,
		Source:  pipelineuc.SourceHTTP,
	}
	if params.NBestSize != nil || params.MaxAnswerLength != nil {
		opts := s.pipeline.Options()
		if params.NBestSize != nil {
			opts.NBestSize = *params.NBestSize
		}
		if params.MaxAnswerLength != nil {
			opts.MaxAnswerLength = *params.MaxAnswerLength
		}
		in.Options = &opts
	}

	set, err := s.pipeline.Predict(r.Context(), in)
	if err != nil {
		s.handleDomainError(w, r, err)
		return nil, false
	}
	return set, true
}

// decodeResults decodes request results one by one. A result that parses
// but fails validation is dropped with a warning, the same as in result
// files; any other decode error rejects the request.
func (s *Server) decodeResults(ctx context.Context, raw []json.RawMessage) ([]rawresult.Result, error) {
	results := make([]rawresult.Result, 0, len(raw))
	for i, msg := range raw {
		var res rawresult.Result
		err := json.Unmarshal(msg, &res)
		switch {
		case err == nil:
			results = append(results, res)
		case errors.Is(err, domain.ErrMalformedResult):
			logpkg.FromContextOr(ctx, s.logger).Warn("Skipping malformed result", zap.Int("result", i), zap.Error(err))
			if s.skipped != nil {
				s.skipped.WithLabelValues(nqfile.SkipMalformed).Inc()
			}
		default:
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
	}
	return results, nil
}

func (s *Server) buildIndex(docs []DocumentRequest) (*candidate.Index, error) {
	index := candidate.NewIndex()
	for i, d := range docs {
		if d.ExampleID == "" {
			return nil, fmt.Errorf("document %d: example_id is required: %w", i, domain.ErrInvalidInput)
		}
		if _, dup := index.Get(d.ExampleID); dup {
			return nil, fmt.Errorf("document %d: duplicate example_id %s: %w", i, d.ExampleID, domain.ErrInvalidInput)
		}
		index.Put(d.ExampleID, candidate.NewSet(d.Candidates, s.topLevelOnly))
	}
	return index, nil
}

// decodeBody reads a size-capped JSON body into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeRequestTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, domain.ErrMalformedResult), errors.Is(err, domain.ErrInvalidInput):
		s.handleDomainError(w, r, err)
	default:
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
	}
	return false
}

func bindPredictionsParams(w http.ResponseWriter, r *http.Request, params *PredictionsParams) bool {
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "n_best_size", q, &params.NBestSize); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			fmt.Sprintf("Invalid format for parameter n_best_size: %s", err))
		return false
	}
	if err := runtime.BindQueryParameter("form", true, false, "max_answer_length", q, &params.MaxAnswerLength); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			fmt.Sprintf("Invalid format for parameter max_answer_length: %s", err))
		return false
	}
	return true
}

func bindUniqueID(w http.ResponseWriter, r *http.Request) (feature.UniqueID, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "unique_id", chi.URLParam(r, "unique_id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			fmt.Sprintf("Invalid format for parameter unique_id: %s", err))
		return "", false
	}
	return feature.UniqueID(id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidInput,
		domain.ErrCandidatesNotFound,
		domain.ErrMalformedResult,
		domain.ErrNoStore,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// inputHandler answers 400 for errors caused by the request payload. The full
// error text names the offending record, so it is returned as is.
func inputHandler(sentinel error, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, _ string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContextOr(r.Context(), s.logger)
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
