// Package errs defines the semantic error kinds shared by every
// pipeline and HTTP handler. Each kind is a sentinel that callers wrap
// with fmt.Errorf("...: %w", errs.ErrX) and unwrap with errors.Is.
package errs

import "errors"

var (
	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadInput means the caller's request was malformed.
	ErrBadInput = errors.New("bad input")

	// ErrModelUnavailable means no CapabilityAssignment resolves the
	// capability a pipeline needs, or the provider call failed auth or
	// network. Callers must defer rather than fail on this kind.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrParse means document parsing or text extraction failed for a
	// single item; the batch continues.
	ErrParse = errors.New("parse error")

	// ErrVectorization means embedding or vector insertion failed for
	// a single child chunk; other chunks proceed.
	ErrVectorization = errors.New("vectorization error")

	// ErrTimeout means an endpoint or call exceeded its time budget.
	ErrTimeout = errors.New("timeout")

	// ErrTransient marks a retryable network or rate-limit error.
	ErrTransient = errors.New("transient error")

	// ErrFatal marks a startup failure that should exit the process.
	ErrFatal = errors.New("fatal error")
)

// IsDeferral reports whether err should leave a task PENDING instead
// of marking it FAILED.
func IsDeferral(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}
