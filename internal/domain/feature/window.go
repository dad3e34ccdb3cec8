package feature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/nqdecode/internal/domain"
)

// UniqueID identifies a feature window across the whole run.
type UniqueID string

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *UniqueID) UnmarshalJSON(data []byte) error {
	s, err := domain.DecodeID(data, "unique_id")
	if err != nil {
		return err
	}
	*id = UniqueID(s)
	return nil
}

// MakeUniqueID derives the window id from its document and span offset.
func MakeUniqueID(exampleID domain.ExampleID, docSpanIndex int) UniqueID {
	return UniqueID(exampleID.String() + "_" + strconv.Itoa(docSpanIndex))
}

// ParseUniqueID splits an id produced by MakeUniqueID.
func ParseUniqueID(id UniqueID) (domain.ExampleID, int, error) {
	s := string(id)
	sep := strings.LastIndexByte(s, '_')
	if sep <= 0 || sep == len(s)-1 {
		return "", 0, fmt.Errorf("unique_id %q has no document suffix: %w", s, domain.ErrInvalidInput)
	}
	span, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return "", 0, fmt.Errorf("unique_id %q has a non-numeric span index: %w", s, domain.ErrInvalidInput)
	}
	return domain.ExampleID(s[:sep]), span, nil
}

// Window is a fixed-length token slice of one document.
type Window struct {
	UniqueID          UniqueID         `json:"unique_id"`
	ExampleID         domain.ExampleID `json:"example_id,omitempty"`
	DocSpanIndex      int              `json:"doc_span_index"`
	InputIDs          []int            `json:"input_ids,omitempty"`
	InputMask         []int            `json:"input_mask,omitempty"`
	SegmentIDs        []int            `json:"segment_ids,omitempty"`
	TokenToOrigMap    map[int]int      `json:"token_to_orig_map"`
	TokenIsMaxContext map[int]bool     `json:"token_is_max_context,omitempty"`
}

// DocumentID returns the owning document: the explicit example_id when present,
// otherwise the prefix of the unique id.
func (w *Window) DocumentID() (domain.ExampleID, error) {
	if w.ExampleID != "" {
		return w.ExampleID, nil
	}
	id, _, err := ParseUniqueID(w.UniqueID)
	if err != nil {
		return "", err
	}
	return id, nil
}

// OrigToken maps a window position to its original document token.
func (w *Window) OrigToken(pos int) (int, bool) {
	orig, ok := w.TokenToOrigMap[pos]
	if !ok || orig < 0 {
		return -1, false
	}
	return orig, true
}

// IsMaxContext reports whether pos has its maximum context in this window.
// Positions without an entry are treated as max context.
func (w *Window) IsMaxContext(pos int) bool {
	v, ok := w.TokenIsMaxContext[pos]
	return !ok || v
}

// Len returns the number of token positions, or 0 when input ids were not exported.
func (w *Window) Len() int { return len(w.InputIDs) }

// Validate checks the fields the decoder relies on.
func (w *Window) Validate() error {
	if w.UniqueID == "" {
		return fmt.Errorf("unique_id is required: %w", domain.ErrInvalidInput)
	}
	if len(w.InputMask) > 0 && len(w.InputMask) != len(w.InputIDs) {
		return fmt.Errorf("window %s: input_mask length %d != input_ids length %d: %w",
			w.UniqueID, len(w.InputMask), len(w.InputIDs), domain.ErrInvalidInput)
	}
	if len(w.SegmentIDs) > 0 && len(w.SegmentIDs) != len(w.InputIDs) {
		return fmt.Errorf("window %s: segment_ids length %d != input_ids length %d: %w",
			w.UniqueID, len(w.SegmentIDs), len(w.InputIDs), domain.ErrInvalidInput)
	}
	if _, err := w.DocumentID(); err != nil {
		return err
	}
	return nil
}
