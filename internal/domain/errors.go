package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a structurally invalid input record.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCandidatesNotFound signals a feature window whose document has no candidate index entry.
	ErrCandidatesNotFound = errors.New("candidates not found")
	// ErrMalformedResult signals a raw result with missing fields or inconsistent shapes.
	ErrMalformedResult = errors.New("malformed raw result")
	// ErrNoStore signals an operation that needs a raw result store when none is configured.
	ErrNoStore = errors.New("result store not configured")
)

// MissingCandidatesError wraps ErrCandidatesNotFound with the orphan window.
type MissingCandidatesError struct {
	ExampleID ExampleID
	UniqueID  string
}

func (e *MissingCandidatesError) Error() string {
	return fmt.Sprintf("%s: example %s (window %s)", ErrCandidatesNotFound.Error(), e.ExampleID, e.UniqueID)
}

func (e *MissingCandidatesError) Unwrap() error { return ErrCandidatesNotFound }

// NewMissingCandidates creates a missing candidates error.
func NewMissingCandidates(exampleID ExampleID, uniqueID string) error {
	return &MissingCandidatesError{ExampleID: exampleID, UniqueID: uniqueID}
}
