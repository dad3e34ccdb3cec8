package prediction

import (
	"strconv"

	"github.com/kailas-cloud/nqdecode/internal/domain"
)

// Span is an original-token span; EndToken is exclusive. {-1, -1} means no span.
type Span struct {
	StartToken int `json:"start_token"`
	EndToken   int `json:"end_token"`
}

// NoSpan is the span of an absent answer.
var NoSpan = Span{StartToken: -1, EndToken: -1}

// IsEmpty reports whether the span is absent.
func (s Span) IsEmpty() bool { return s.StartToken < 0 }

// String formats the span in submission form "start:end".
func (s Span) String() string {
	return strconv.Itoa(s.StartToken) + ":" + strconv.Itoa(s.EndToken)
}

// Record is the best answer for one document.
type Record struct {
	ExampleID         domain.ExampleID  `json:"example_id"`
	LongAnswer        Span              `json:"long_answer"`
	LongAnswerScore   float64           `json:"long_answer_score"`
	ShortAnswers      []Span            `json:"short_answers"`
	ShortAnswersScore float64           `json:"short_answers_score"`
	YesNoAnswer       domain.YesNo      `json:"yes_no_answer"`
	AnswerType        domain.AnswerType `json:"answer_type"`
}

// NoAnswer returns the terminal record of a document without any usable span.
func NoAnswer(id domain.ExampleID) Record {
	return Record{
		ExampleID:         id,
		LongAnswer:        NoSpan,
		LongAnswerScore:   domain.NoAnswerScore,
		ShortAnswers:      []Span{},
		ShortAnswersScore: domain.NoAnswerScore,
		YesNoAnswer:       domain.YesNoNone,
		AnswerType:        domain.AnswerNone,
	}
}

// HasLongAnswer reports whether a long answer span was chosen.
func (r *Record) HasLongAnswer() bool { return !r.LongAnswer.IsEmpty() }

// File is the predictions output document.
type File struct {
	Predictions []Record `json:"predictions"`
}
