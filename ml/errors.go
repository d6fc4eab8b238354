package ml

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyDataset  = errors.New("dataset is empty")
	ErrMissingColumn = errors.New("missing column")
	ErrNotTrained    = errors.New("model not trained")
)

// ErrorKind identifies the serving stage that failed.
type ErrorKind string

const (
	KindParse      ErrorKind = "parse"
	KindValidation ErrorKind = "validation"
	KindTransform  ErrorKind = "transform"
	KindPredict    ErrorKind = "predict"
)

// PredictError is returned by every stage of a single-record prediction.
type PredictError struct {
	Kind ErrorKind
	Err  error
}

func (e *PredictError) Error() string {
	return e.Err.Error()
}

func (e *PredictError) Unwrap() error {
	return e.Err
}

func NewPredictError(kind ErrorKind, err error) *PredictError {
	return &PredictError{Kind: kind, Err: err}
}

// FieldErrorKind 字段错误类型
type FieldErrorKind string

const (
	FieldMissing    FieldErrorKind = "missing"
	FieldUnexpected FieldErrorKind = "unexpected"
	FieldInvalid    FieldErrorKind = "invalid"
)

// FieldError describes one offending key of an inference record.
type FieldError struct {
	Field  string
	Kind   FieldErrorKind
	Reason string
}

func (e FieldError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s field %q: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s field %q", e.Kind, e.Field)
}

// FieldErrors collects every field problem of a record.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Has reports whether any field error has the given kind.
func (e FieldErrors) Has(kind FieldErrorKind) bool {
	for _, fe := range e {
		if fe.Kind == kind {
			return true
		}
	}
	return false
}
