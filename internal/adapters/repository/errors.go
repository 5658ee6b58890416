package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("submission not found")
	ErrMissingID    = errors.New("submission id is required")
	ErrMixedMetrics = errors.New("competition has submissions scored with different metrics")
)
