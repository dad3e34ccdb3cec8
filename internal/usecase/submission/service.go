package submission

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
)

// DefaultThreshold is the minimum score for an answer to be submitted.
const DefaultThreshold = 1.5

// Service turns prediction records into submission rows.
type Service struct {
	threshold float64
	logger    *zap.Logger
}

// New creates a submission adapter. Scores below threshold yield empty strings.
func New(threshold float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{threshold: threshold, logger: logger}
}

// Threshold returns the score cutoff.
func (s *Service) Threshold() float64 { return s.threshold }

// LongString formats the long answer of r, or "" when it is not submitted.
func (s *Service) LongString(r *prediction.Record) string {
	if r.AnswerType == domain.AnswerNone || r.LongAnswerScore < s.threshold {
		return ""
	}
	if !r.HasLongAnswer() {
		return ""
	}
	return r.LongAnswer.String()
}

// ShortString formats the short answer of r: a yes/no literal, the
// space-joined spans, or "" when it is not submitted.
func (s *Service) ShortString(r *prediction.Record) string {
	if r.AnswerType == domain.AnswerNone || r.ShortAnswersScore < s.threshold {
		return ""
	}
	if r.YesNoAnswer != domain.YesNoNone && r.YesNoAnswer != "" {
		return string(r.YesNoAnswer)
	}
	parts := make([]string, 0, len(r.ShortAnswers))
	for _, sp := range r.ShortAnswers {
		if sp.IsEmpty() {
			continue
		}
		parts = append(parts, sp.String())
	}
	return strings.Join(parts, " ")
}

// Rows emits a long and a short row per record, in record order.
func (s *Service) Rows(records []prediction.Record) []prediction.Row {
	rows := make([]prediction.Row, 0, 2*len(records))
	for i := range records {
		r := &records[i]
		id := r.ExampleID.String()
		rows = append(rows,
			prediction.Row{ID: id + prediction.LongSuffix, PredictionString: s.LongString(r)},
			prediction.Row{ID: id + prediction.ShortSuffix, PredictionString: s.ShortString(r)},
		)
	}
	return rows
}

// RowsFor emits one row per sample row id, in sample order. A sample row
// whose document has no record is an error.
func (s *Service) RowsFor(records []prediction.Record, sampleIDs []string) ([]prediction.Row, error) {
	byID := make(map[domain.ExampleID]*prediction.Record, len(records))
	for i := range records {
		byID[records[i].ExampleID] = &records[i]
	}

	rows := make([]prediction.Row, 0, len(sampleIDs))
	for _, rowID := range sampleIDs {
		doc, long, err := splitRowID(rowID)
		if err != nil {
			return nil, err
		}
		r, ok := byID[doc]
		if !ok {
			return nil, fmt.Errorf("sample row %s: no prediction for example %s: %w", rowID, doc, domain.ErrNotFound)
		}
		row := prediction.Row{ID: rowID}
		if long {
			row.PredictionString = s.LongString(r)
		} else {
			row.PredictionString = s.ShortString(r)
		}
		rows = append(rows, row)
	}

	if extra := len(records) - countDocs(sampleIDs); extra > 0 {
		s.logger.Info("Predictions not listed in sample submission", zap.Int("documents", extra))
	}
	return rows, nil
}

func splitRowID(rowID string) (domain.ExampleID, bool, error) {
	if doc, ok := strings.CutSuffix(rowID, prediction.LongSuffix); ok {
		return domain.ExampleID(doc), true, nil
	}
	if doc, ok := strings.CutSuffix(rowID, prediction.ShortSuffix); ok {
		return domain.ExampleID(doc), false, nil
	}
	return "", false, fmt.Errorf("sample row %q has no _long or _short suffix: %w", rowID, domain.ErrInvalidInput)
}

func countDocs(sampleIDs []string) int {
	seen := make(map[string]struct{}, len(sampleIDs)/2)
	for _, id := range sampleIDs {
		doc := strings.TrimSuffix(strings.TrimSuffix(id, prediction.LongSuffix), prediction.ShortSuffix)
		seen[doc] = struct{}{}
	}
	return len(seen)
}
