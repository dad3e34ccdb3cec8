package rawresult

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
)

// record is the wire shape shared by both variants; the variant is detected
// from which logit fields are present.
type record struct {
	UniqueID         feature.UniqueID `json:"unique_id"`
	StartLogits      []float64        `json:"start_logits,omitempty"`
	EndLogits        []float64        `json:"end_logits,omitempty"`
	AnswerTypeLogits []float64        `json:"answer_type_logits"`

	LongStartTopKLogits  []float64 `json:"long_start_topk_logits,omitempty"`
	LongStartTopKIndex   []int     `json:"long_start_topk_index,omitempty"`
	LongEndTopKLogits    []float64 `json:"long_end_topk_logits,omitempty"`
	LongEndTopKIndex     []int     `json:"long_end_topk_index,omitempty"`
	ShortStartTopKLogits []float64 `json:"short_start_topk_logits,omitempty"`
	ShortStartTopKIndex  []int     `json:"short_start_topk_index,omitempty"`
	ShortEndTopKLogits   []float64 `json:"short_end_topk_logits,omitempty"`
	ShortEndTopKIndex    []int     `json:"short_end_topk_index,omitempty"`
	LongCLSLogits        *float64  `json:"long_cls_logits,omitempty"`
	ShortCLSLogits       *float64  `json:"short_cls_logits,omitempty"`
}

func (rec *record) isTopK() bool {
	return rec.LongStartTopKLogits != nil || rec.ShortStartTopKLogits != nil
}

// MarshalJSON encodes the result in its wire shape.
func (r Result) MarshalJSON() ([]byte, error) {
	rec := record{UniqueID: r.uniqueID}
	switch {
	case r.dense != nil:
		rec.StartLogits = r.dense.StartLogits
		rec.EndLogits = r.dense.EndLogits
		rec.AnswerTypeLogits = r.dense.AnswerTypeLogits
	case r.topK != nil:
		t := r.topK
		rec.AnswerTypeLogits = t.AnswerTypeLogits
		rec.LongStartTopKLogits, rec.LongStartTopKIndex = splitEntries(t.LongStart)
		rec.LongEndTopKLogits, rec.LongEndTopKIndex = splitEntries(t.LongEnd)
		rec.ShortStartTopKLogits, rec.ShortStartTopKIndex = splitEntries(t.ShortStart)
		rec.ShortEndTopKLogits, rec.ShortEndTopKIndex = splitEntries(t.ShortEnd)
		longCLS, shortCLS := t.LongCLS, t.ShortCLS
		rec.LongCLSLogits = &longCLS
		rec.ShortCLSLogits = &shortCLS
	default:
		return nil, fmt.Errorf("encode empty raw result: %w", domain.ErrMalformedResult)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes and validates a result.
func (r *Result) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode raw result: %w", err)
	}

	if !rec.isTopK() {
		res, err := NewDense(rec.UniqueID, Dense{
			StartLogits:      rec.StartLogits,
			EndLogits:        rec.EndLogits,
			AnswerTypeLogits: rec.AnswerTypeLogits,
		})
		if err != nil {
			return err
		}
		*r = res
		return nil
	}

	if rec.LongCLSLogits == nil || rec.ShortCLSLogits == nil {
		return malformed(rec.UniqueID, "top-k result requires long_cls_logits and short_cls_logits")
	}
	t := TopK{
		LongCLS:          *rec.LongCLSLogits,
		ShortCLS:         *rec.ShortCLSLogits,
		AnswerTypeLogits: rec.AnswerTypeLogits,
	}
	var err error
	if t.LongStart, err = joinEntries(rec.UniqueID, "long_start", rec.LongStartTopKLogits, rec.LongStartTopKIndex); err != nil {
		return err
	}
	if t.LongEnd, err = joinEntries(rec.UniqueID, "long_end", rec.LongEndTopKLogits, rec.LongEndTopKIndex); err != nil {
		return err
	}
	if t.ShortStart, err = joinEntries(rec.UniqueID, "short_start", rec.ShortStartTopKLogits, rec.ShortStartTopKIndex); err != nil {
		return err
	}
	if t.ShortEnd, err = joinEntries(rec.UniqueID, "short_end", rec.ShortEndTopKLogits, rec.ShortEndTopKIndex); err != nil {
		return err
	}

	res, err := NewTopK(rec.UniqueID, t)
	if err != nil {
		return err
	}
	*r = res
	return nil
}

func splitEntries(entries []Entry) ([]float64, []int) {
	logits := make([]float64, len(entries))
	index := make([]int, len(entries))
	for i, e := range entries {
		logits[i] = e.Logit
		index[i] = e.Index
	}
	return logits, index
}

func joinEntries(id feature.UniqueID, name string, logits []float64, index []int) ([]Entry, error) {
	if len(logits) != len(index) {
		return nil, malformed(id, fmt.Sprintf("%s top-k logits length %d != index length %d",
			name, len(logits), len(index)))
	}
	entries := make([]Entry, len(logits))
	for i := range logits {
		entries[i] = Entry{Logit: logits[i], Index: index[i]}
	}
	return entries, nil
}
