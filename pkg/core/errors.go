package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNotFound = errors.New("note not found")
	ErrClosed   = errors.New("storage is closed")
)

// ErrorKind classifies storage failures so callers can branch on them.
type ErrorKind string

const (
	// KindNotFound means the artifact does not exist (yet).
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindCorrupt means the artifact exists but could not be decoded.
	KindCorrupt ErrorKind = "CORRUPT"
	// KindIO covers transient filesystem or key-value failures.
	KindIO ErrorKind = "IO"
	// KindUnavailable means the backend is not usable in this environment.
	KindUnavailable ErrorKind = "UNAVAILABLE"
)

// StorageError is returned by every backend operation that fails.
type StorageError struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError builds a StorageError.
func NewStorageError(kind ErrorKind, op, path string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" if err is not a StorageError.
func KindOf(err error) ErrorKind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err is a StorageError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
