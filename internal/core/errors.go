package core

// errors.go defines the typed errors of the export pipeline.
//
//   - ValidationError: bad scope input, raised before any remote call
//   - RetrievalError: a remote fetch failed; aborts the whole export
//   - DecodeError: a physical lock id could not be decoded
//
// Handlers inspect them with errors.As to pick a status code.

import (
	"errors"
	"fmt"
)

// ErrTooManyExports is returned when all export slots are occupied and the
// wait timeout expires.
var ErrTooManyExports = errors.New("too many exports in progress, please try again later")

// ValidationError reports a missing or malformed scope parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// RetrievalError reports a failed remote fetch.
//
// Status is the HTTP status returned by the remote API, or 0 when no response
// was received or the body was malformed.
type RetrievalError struct {
	Path   string
	Status int
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("retrieve %s: remote returned status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("retrieve %s: %v", e.Path, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the remote API rejected the credentials.
func (e *RetrievalError) Unauthorized() bool {
	return e.Status == 401
}

// DecodeError reports a physical lock id that is not valid packed base64.
type DecodeError struct {
	Input  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode lock id %q: %s", e.Input, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
