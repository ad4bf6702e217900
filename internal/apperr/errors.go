// Package apperr defines the error kinds shared across the pipeline.
// Callers wrap them with fmt.Errorf("...: %w", kind) and test with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound means a document, schema or template does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyInput means a required string (path, field name) was empty.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidFormat means a value or directive did not have the expected syntax.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrTypeMismatch means a value at a path was not of the expected shape.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrPropertyNotFound means a path segment could not be navigated.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrAggregationFailed is the terminal failure reported by an external aggregator.
	ErrAggregationFailed = errors.New("data aggregation failed")
	// ErrConfiguration means a required collaborator was not supplied.
	ErrConfiguration = errors.New("configuration error")
	// ErrProcessingFailed means template resolution failed in strict mode.
	ErrProcessingFailed = errors.New("processing failed")
)
