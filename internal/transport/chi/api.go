package chi

import (
	"encoding/json"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// ErrorCode is the machine readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeValidationFailed   ErrorCode = "validation_failed"
	ErrorCodeMalformedResult    ErrorCode = "malformed_result"
	ErrorCodeCandidatesNotFound ErrorCode = "candidates_not_found"
	ErrorCodeResultNotFound     ErrorCode = "result_not_found"
	ErrorCodeStoreNotConfigured ErrorCode = "store_not_configured"
	ErrorCodeRequestTooLarge    ErrorCode = "request_too_large"
	ErrorCodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// PutResultsRequest is the body of PUT /v1/results.
type PutResultsRequest struct {
	Results []rawresult.Result `json:"results"`
}

// PutResultsResponse reports how many results were stored.
type PutResultsResponse struct {
	Stored int `json:"stored"`
}

// ResultIDsResponse lists stored unique ids.
type ResultIDsResponse struct {
	UniqueIDs []feature.UniqueID `json:"unique_ids"`
	Count     int                `json:"count"`
}

// DocumentRequest is one document of a decode request.
type DocumentRequest struct {
	ExampleID  domain.ExampleID      `json:"example_id"`
	Candidates []candidate.Candidate `json:"long_answer_candidates"`
}

// DecodeRequest is the body of POST /v1/predictions and POST /v1/submission.
// Results missing for a window are looked up in the store.
type DecodeRequest struct {
	Documents []DocumentRequest  `json:"documents"`
	Features  []feature.Window   `json:"features"`
	Results   []rawresult.Result `json:"results"`
}

// decodeRequestBody is DecodeRequest with results left raw, so that one
// malformed result does not fail the whole body.
type decodeRequestBody struct {
	Documents []DocumentRequest `json:"documents"`
	Features  []feature.Window  `json:"features"`
	Results   []json.RawMessage `json:"results"`
}

// PredictionsResponse is the body of POST /v1/predictions.
type PredictionsResponse = prediction.File

// PredictionsParams are the query parameters of the decode endpoints.
type PredictionsParams struct {
	NBestSize       *int `json:"n_best_size,omitempty"`
	MaxAnswerLength *int `json:"max_answer_length,omitempty"`
}

// SubmissionParams are the query parameters of POST /v1/submission.
type SubmissionParams struct {
	PredictionsParams
	Threshold *float64 `json:"threshold,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}
