package nqdecode

import "github.com/kailas-cloud/nqdecode/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound           = domain.ErrNotFound
	ErrInvalidInput       = domain.ErrInvalidInput
	ErrMalformedResult    = domain.ErrMalformedResult
	ErrCandidatesNotFound = domain.ErrCandidatesNotFound
	ErrNoStore            = domain.ErrNoStore
)
