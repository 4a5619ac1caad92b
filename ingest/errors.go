package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField            = errors.New("missing field")
	ErrUnparseableValue        = errors.New("unparseable value")
	ErrUserNotFound            = errors.New("user not found")
	ErrAccountResolutionFailed = errors.New("account resolution failed")
	ErrPersistenceFailed       = errors.New("persistence failed")
	ErrAggregationFailed       = errors.New("aggregation failed")
	ErrBatchTooLarge           = errors.New("batch too large")
	ErrUnknownPlatform         = errors.New("unknown platform")
)

// FieldError reports a row field that was absent or could not be parsed.
// Kind is ErrMissingField or ErrUnparseableValue.
type FieldError struct {
	Field string
	Value string
	Kind  error
	Cause error
}

func (e *FieldError) Error() string {
	if e.Kind == ErrMissingField {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	msg := fmt.Sprintf("%s: %s=%q", e.Kind, e.Field, e.Value)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func missing(field string) error {
	return &FieldError{Field: field, Kind: ErrMissingField}
}

func unparseable(field, value string, cause error) error {
	return &FieldError{Field: field, Value: value, Kind: ErrUnparseableValue, Cause: cause}
}

// FieldOf returns the offending field name when err carries one.
func FieldOf(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}
