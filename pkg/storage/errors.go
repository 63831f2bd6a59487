package storage

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConnection indicates the backend is unreachable or rejected authentication.
	ErrConnection = errors.New("storage connection failed")
	// ErrDirectory indicates a stage location could not be created.
	ErrDirectory = errors.New("stage location unavailable")
	// ErrTransfer indicates a move, copy, or write between stages failed.
	ErrTransfer = errors.New("stage transfer failed")
	// ErrNotFound indicates the expected file is absent at a stage.
	ErrNotFound = errors.New("file not found")
	// ErrEmptyKey indicates an empty path segment was provided.
	ErrEmptyKey = errors.New("storage key must not be empty")
	// ErrInvalidKey indicates a path segment contains a separator or traversal sequence.
	ErrInvalidKey = errors.New("storage key contains invalid path segment")
)

// Error describes a failed storage operation. Kind is one of the sentinel
// errors above, so callers classify with errors.Is.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(kind error, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTransfer):
		return http.StatusInternalServerError
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
