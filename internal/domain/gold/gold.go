// Package gold holds the reference annotations of an evaluation file.
package gold

import (
	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
)

// MinAnswering is how many annotators must agree that an answer exists when
// a document carries at least that many annotations.
const MinAnswering = 2

// LongAnswer is an annotated long answer. A null answer has StartToken -1.
type LongAnswer struct {
	StartToken     int `json:"start_token"`
	EndToken       int `json:"end_token"`
	CandidateIndex int `json:"candidate_index"`
}

// Span returns the long answer as a prediction span.
func (l LongAnswer) Span() prediction.Span {
	return prediction.Span{StartToken: l.StartToken, EndToken: l.EndToken}
}

// IsNull reports whether the annotator gave no long answer.
func (l LongAnswer) IsNull() bool { return l.StartToken < 0 || l.EndToken < 0 }

// Annotation is one annotator's label for a document.
type Annotation struct {
	LongAnswer   LongAnswer        `json:"long_answer"`
	ShortAnswers []prediction.Span `json:"short_answers"`
	YesNoAnswer  domain.YesNo      `json:"yes_no_answer"`
}

// HasYesNo reports whether the annotator answered yes or no.
func (a *Annotation) HasYesNo() bool {
	return a.YesNoAnswer != "" && a.YesNoAnswer != domain.YesNoNone
}

// HasShortAnswer reports whether the annotator gave short spans or a yes/no answer.
func (a *Annotation) HasShortAnswer() bool {
	return len(a.ShortAnswers) > 0 || a.HasYesNo()
}

// Example is a document with its annotations.
type Example struct {
	ExampleID   domain.ExampleID `json:"example_id"`
	Annotations []Annotation     `json:"annotations"`
}

// required is the number of agreeing annotators for a non-null gold answer.
// Training exports carry a single annotation, which then suffices.
func (e *Example) required() int {
	return min(MinAnswering, len(e.Annotations))
}

// HasLongAnswer reports whether enough annotators gave a long answer.
func (e *Example) HasLongAnswer() bool {
	n := 0
	for i := range e.Annotations {
		if !e.Annotations[i].LongAnswer.IsNull() {
			n++
		}
	}
	return n > 0 && n >= e.required()
}

// HasShortAnswer reports whether enough annotators gave a short answer.
func (e *Example) HasShortAnswer() bool {
	n := 0
	for i := range e.Annotations {
		if e.Annotations[i].HasShortAnswer() {
			n++
		}
	}
	return n > 0 && n >= e.required()
}

// MatchesLong reports whether span equals a non-null annotated long answer.
func (e *Example) MatchesLong(span prediction.Span) bool {
	for i := range e.Annotations {
		la := e.Annotations[i].LongAnswer
		if !la.IsNull() && la.Span() == span {
			return true
		}
	}
	return false
}

// MatchesShort reports whether a predicted short answer equals an annotated
// one: the same yes/no literal, or the same set of spans.
func (e *Example) MatchesShort(spans []prediction.Span, yesNo domain.YesNo) bool {
	predYesNo := yesNo != "" && yesNo != domain.YesNoNone
	for i := range e.Annotations {
		a := &e.Annotations[i]
		if predYesNo {
			if a.HasYesNo() && a.YesNoAnswer == yesNo {
				return true
			}
			continue
		}
		if len(a.ShortAnswers) > 0 && sameSpans(a.ShortAnswers, spans) {
			return true
		}
	}
	return false
}

// sameSpans compares span sets, ignoring order, duplicates and empty spans.
func sameSpans(a, b []prediction.Span) bool {
	set := func(spans []prediction.Span) map[prediction.Span]struct{} {
		m := make(map[prediction.Span]struct{}, len(spans))
		for _, s := range spans {
			if !s.IsEmpty() {
				m[s] = struct{}{}
			}
		}
		return m
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) || len(sa) == 0 {
		return false
	}
	for s := range sa {
		if _, ok := sb[s]; !ok {
			return false
		}
	}
	return true
}
