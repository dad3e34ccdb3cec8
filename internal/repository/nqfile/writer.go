package nqfile

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kailas-cloud/nqdecode/internal/domain"
	"github.com/kailas-cloud/nqdecode/internal/domain/prediction"
)

var submissionHeader = []string{"example_id", "PredictionString"}

// WritePredictions encodes the predictions document.
func WritePredictions(w io.Writer, f prediction.File) error {
	if f.Predictions == nil {
		f.Predictions = []prediction.Record{}
	}
	bw := bufio.NewWriter(w)
	if err := json.NewEncoder(bw).Encode(f); err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}
	return bw.Flush()
}

// WriteSubmission writes the submission CSV with its header row.
func WriteSubmission(w io.Writer, rows []prediction.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(submissionHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ID, r.PredictionString}); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush submission: %w", err)
	}
	return nil
}

// SampleSubmissionIDs returns the row ids of a sample submission in file order.
func SampleSubmissionIDs(in io.Reader) ([]string, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("sample submission is empty: %w", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("read sample submission header: %w", err)
	}
	if len(header) == 0 || header[0] != submissionHeader[0] {
		return nil, fmt.Errorf("sample submission header %v: %w", header, domain.ErrInvalidInput)
	}

	var ids []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read sample submission: %w", err)
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		ids = append(ids, rec[0])
	}
}
