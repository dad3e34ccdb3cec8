package prediction

// Row suffixes appended to the document id in a submission.
const (
	LongSuffix  = "_long"
	ShortSuffix = "_short"
)

// Row is one line of a submission file.
type Row struct {
	ID               string
	PredictionString string
}
