package nqdecode

import (
	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/candidate"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// Aliases of the decoder's data model. They keep their JSON encodings, so
// values read from the standard Natural Questions files round-trip.
type (
	// ExampleID identifies a document.
	ExampleID = domain.ExampleID
	// UniqueID identifies one feature window, "<example_id>_<doc_span_index>".
	UniqueID = feature.UniqueID
	// Candidate is a long answer candidate span in document tokens.
	Candidate = candidate.Candidate
	// Window is one tokenized feature window of a document.
	Window = feature.Window
	// RawResult holds the model logits of one window, dense or top-k.
	RawResult = rawresult.Result
	// Dense carries full start/end logit vectors.
	Dense = rawresult.Dense
	// TopK carries beam-searched start/end logits.
	TopK = rawresult.TopK
	// Entry is one (logit, index) pair of a top-k result.
	Entry = rawresult.Entry
	// Prediction is the decoded answer of one document.
	Prediction = prediction.Record
	// Span is a token span; NoSpan means no answer.
	Span = prediction.Span
	// Row is one line of a submission.
	Row = prediction.Row
)

// NoSpan is the empty answer span.
var NoSpan = prediction.NoSpan

// Document is an example with its long answer candidates.
type Document struct {
	ExampleID  ExampleID   `json:"example_id"`
	Candidates []Candidate `json:"long_answer_candidates"`
}

// Input is one decode call. Windows without a matching entry in Results are
// looked up in the result store when one is configured.
type Input struct {
	Documents []Document
	Windows   []Window
	Results   []RawResult
}

// NewDense validates and builds a dense raw result.
func NewDense(id UniqueID, d Dense) (RawResult, error) {
	return rawresult.NewDense(id, d) //nolint:wrapcheck // domain error
}

// NewTopK validates and builds a top-k raw result.
func NewTopK(id UniqueID, t TopK) (RawResult, error) {
	return rawresult.NewTopK(id, t) //nolint:wrapcheck // domain error
}
