package enrichment

import "errors"

var (
	// ErrAnalysisFailed marks a per-document analyzer failure.
	ErrAnalysisFailed = errors.New("analysis failed")
	// ErrStoreUnavailable marks a failure that aborted a whole enrichment run.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidLimit is returned by the entity report for a non-positive limit.
	ErrInvalidLimit = errors.New("limit must be positive")

	ErrStoreRequired    = errors.New("store is required")
	ErrAnalyzerRequired = errors.New("text analyzer is required")
)
