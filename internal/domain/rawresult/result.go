package rawresult

import (
	"fmt"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
)

// Kind is the variant of a raw result.
type Kind int

// Raw result variants.
const (
	KindDense Kind = iota + 1
	KindTopK
)

func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindTopK:
		return "topk"
	default:
		return "unknown"
	}
}

// ParseKind parses a variant name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "dense":
		return KindDense, nil
	case "topk":
		return KindTopK, nil
	default:
		return 0, fmt.Errorf("unknown raw result variant %q: %w", s, domain.ErrInvalidInput)
	}
}

// Dense holds per-position logits over a whole window.
type Dense struct {
	StartLogits      []float64
	EndLogits        []float64
	AnswerTypeLogits []float64
}

// Entry is one precomputed (logit, position) pair.
type Entry struct {
	Logit float64
	Index int
}

// TopK holds precomputed top-k start/end candidates for long and short spans.
type TopK struct {
	LongStart        []Entry
	LongEnd          []Entry
	ShortStart       []Entry
	ShortEnd         []Entry
	LongCLS          float64
	ShortCLS         float64
	AnswerTypeLogits []float64
}

// Result is the model output of one feature window: exactly one of dense or topK is set.
type Result struct {
	uniqueID feature.UniqueID
	kind     Kind
	dense    *Dense
	topK     *TopK
}

// NewDense creates a dense raw result.
func NewDense(id feature.UniqueID, d Dense) (Result, error) {
	if err := validateID(id); err != nil {
		return Result{}, err
	}
	if len(d.StartLogits) == 0 {
		return Result{}, malformed(id, "start_logits is empty")
	}
	if len(d.StartLogits) != len(d.EndLogits) {
		return Result{}, malformed(id, fmt.Sprintf(
			"start_logits length %d != end_logits length %d", len(d.StartLogits), len(d.EndLogits)))
	}
	if err := validateAnswerTypes(id, d.AnswerTypeLogits); err != nil {
		return Result{}, err
	}
	return Result{uniqueID: id, kind: KindDense, dense: &d}, nil
}

// NewTopK creates a top-k raw result.
func NewTopK(id feature.UniqueID, t TopK) (Result, error) {
	if err := validateID(id); err != nil {
		return Result{}, err
	}
	for name, entries := range map[string][]Entry{
		"long_start": t.LongStart, "long_end": t.LongEnd,
		"short_start": t.ShortStart, "short_end": t.ShortEnd,
	} {
		if len(entries) == 0 {
			return Result{}, malformed(id, name+" top-k is empty")
		}
		for _, e := range entries {
			if e.Index < 0 {
				return Result{}, malformed(id, fmt.Sprintf("%s top-k index %d is negative", name, e.Index))
			}
		}
	}
	if err := validateAnswerTypes(id, t.AnswerTypeLogits); err != nil {
		return Result{}, err
	}
	return Result{uniqueID: id, kind: KindTopK, topK: &t}, nil
}

// UniqueID returns the id of the window this result belongs to.
func (r *Result) UniqueID() feature.UniqueID { return r.uniqueID }

// Kind returns the variant.
func (r *Result) Kind() Kind { return r.kind }

// Dense returns the dense payload.
func (r *Result) Dense() (*Dense, bool) { return r.dense, r.dense != nil }

// TopK returns the top-k payload.
func (r *Result) TopK() (*TopK, bool) { return r.topK, r.topK != nil }

// AnswerTypeLogits returns the answer-type logits of either variant.
func (r *Result) AnswerTypeLogits() []float64 {
	switch {
	case r.dense != nil:
		return r.dense.AnswerTypeLogits
	case r.topK != nil:
		return r.topK.AnswerTypeLogits
	default:
		return nil
	}
}

// MaxPosition returns the largest window position referenced by the result.
func (r *Result) MaxPosition() int {
	if r.dense != nil {
		return len(r.dense.StartLogits) - 1
	}
	maxPos := -1
	if r.topK != nil {
		for _, entries := range [][]Entry{r.topK.LongStart, r.topK.LongEnd, r.topK.ShortStart, r.topK.ShortEnd} {
			for _, e := range entries {
				if e.Index > maxPos {
					maxPos = e.Index
				}
			}
		}
	}
	return maxPos
}

func validateID(id feature.UniqueID) error {
	if id == "" {
		return fmt.Errorf("unique_id is required: %w", domain.ErrMalformedResult)
	}
	return nil
}

func validateAnswerTypes(id feature.UniqueID, logits []float64) error {
	if len(logits) < domain.MinAnswerTypes || len(logits) > domain.NumAnswerTypes {
		return malformed(id, fmt.Sprintf("answer_type_logits has %d entries, want %d or %d",
			len(logits), domain.MinAnswerTypes, domain.NumAnswerTypes))
	}
	return nil
}

func malformed(id feature.UniqueID, msg string) error {
	return fmt.Errorf("window %s: %s: %w", id, msg, domain.ErrMalformedResult)
}
