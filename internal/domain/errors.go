package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInferenceUnavailable means no model is loaded or the model failed
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrPromotionRejected means a candidate did not beat the active model
	ErrPromotionRejected = errors.New("candidate model rejected")
	// ErrRecordNotFound means finalize targeted an id that is not in the log
	ErrRecordNotFound = errors.New("decision record not found")
)

// ValidationError reports a market state that failed integrity checks
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid market state: %s: %s", e.Field, e.Reason)
}

// StorageError wraps a failed read or write against the experience log
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("experience store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
