package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind distinguishes rejected input from processing failures so callers
// can decide between fixing the upload and retrying later.
type ErrorKind string

const (
	KindUnsupportedFormat  ErrorKind = "UnsupportedFormat"
	KindPayloadTooLarge    ErrorKind = "PayloadTooLarge"
	KindNoFileProvided     ErrorKind = "NoFileProvided"
	KindConversionFailed   ErrorKind = "ConversionFailed"
	KindCatalogUnavailable ErrorKind = "CatalogUnavailable"
	KindCleanupFailed      ErrorKind = "CleanupFailed"
	KindInternal           ErrorKind = "Internal"
)

// Error is a user-facing failure with a machine readable kind.
type Error struct {
	Kind       ErrorKind
	Message    string
	Diagnostic string // converter output, if any
	ExitCode   int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to the HTTP status returned to clients.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnsupportedFormat, KindNoFileProvided:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
