package spectrum

import "errors"

// Errors returned by spectrum validation and region extraction.
var (
	ErrTooShort       = errors.New("spectrum: at least two bins required")
	ErrLengthMismatch = errors.New("spectrum: energies and counts length mismatch")
	ErrNotIncreasing  = errors.New("spectrum: energies must be strictly increasing")
	ErrNegativeCount  = errors.New("spectrum: counts must be non-negative")
	ErrInvalidEdges   = errors.New("spectrum: need len(counts)+1 channel edges")
	ErrInvalidBounds  = errors.New("spectrum: region upper bound must exceed lower bound")
	ErrEmptyRegion    = errors.New("spectrum: no samples in energy region")
)
