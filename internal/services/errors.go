package services

import "errors"

// Dataset service errors
var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrNoResults       = errors.New("no analysis produced a result")
	ErrTooManyAnalyses = errors.New("too many analyses requested")
)
