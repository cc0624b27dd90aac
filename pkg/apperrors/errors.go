package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidConfidence      = errors.New("confidence out of range")
	ErrConcurrentModification = errors.New("concurrent modification, retries exhausted")
	ErrExtractionShape        = errors.New("extraction result missing required structure")
	ErrIngestionAborted       = errors.New("ingestion aborted")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionEnded           = errors.New("session already ended")
)
