package errors

import (
	stderrors "errors"
	"net/http"

	errorsOrig "github.com/pkg/errors"
)

// Kind classifies an error for callers that need to react to it, like the HTTP layer.
// A Kind is matched with Is(err, NotFound) anywhere in the wrap chain.
type Kind string

const (
	Unknown           Kind = "unknown"
	BadRequest        Kind = "bad request"
	Unauthorized      Kind = "unauthorized"
	Forbidden         Kind = "forbidden"
	NotFound          Kind = "not found"
	Conflict          Kind = "conflict"
	RateLimited       Kind = "rate limited"
	Upstream          Kind = "upstream failure"
	InsufficientFunds Kind = "insufficient funds"
)

var statusByKind = map[Kind]int{
	BadRequest:        http.StatusBadRequest,
	Unauthorized:      http.StatusUnauthorized,
	Forbidden:         http.StatusForbidden,
	NotFound:          http.StatusNotFound,
	Conflict:          http.StatusConflict,
	RateLimited:       http.StatusForbidden,
	Upstream:          http.StatusInternalServerError,
	InsufficientFunds: http.StatusInternalServerError,
}

func (k Kind) Error() string {
	return string(k)
}

// HTTP status code a request failing with this kind should answer with
func (k Kind) Status() int {
	if status, ok := statusByKind[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	return e.cause.Error()
}

func (e *kindError) Unwrap() error {
	return e.cause
}

func (e *kindError) Cause() error {
	return e.cause
}

func (e *kindError) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.kind
}

// Tag an existing error with a kind, keeping its message
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: err}
}

// New error of a kind, with stacktrace
func Kindf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, cause: errorsOrig.Errorf(format, args...)}
}

// Outermost kind in the error chain, or Unknown
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	var kind Kind
	if stderrors.As(err, &kind) {
		return kind
	}
	return Unknown
}
