package domain

// AnswerType is the answer-type classification of a window or document.
type AnswerType int

// Answer type codes, in the order of the model's answer-type logits.
const (
	AnswerNone AnswerType = iota
	AnswerYes
	AnswerNo
	AnswerShort
	AnswerLong
)

// NumAnswerTypes is the width of a full answer-type logit vector.
const NumAnswerTypes = 5

// MinAnswerTypes is the narrowest accepted answer-type logit vector (no LONG slot).
const MinAnswerTypes = 4

func (t AnswerType) String() string {
	switch t {
	case AnswerNone:
		return "NONE"
	case AnswerYes:
		return "YES"
	case AnswerNo:
		return "NO"
	case AnswerShort:
		return "SHORT"
	case AnswerLong:
		return "LONG"
	default:
		return "UNKNOWN"
	}
}

// YesNo is the yes/no answer literal of a prediction.
type YesNo string

// Yes/no answer values.
const (
	YesNoNone YesNo = "NONE"
	YesNoYes  YesNo = "YES"
	YesNoNo   YesNo = "NO"
)

// NoAnswerScore is the score of a document for which no answer was produced.
const NoAnswerScore = -10000.0
