package driver

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by a driver or by the transfer algorithm
// matches one of them with errors.Is.
var (
	ErrConnection = errors.New("connection error")
	ErrNotFound   = errors.New("not found")
	ErrIO         = errors.New("i/o error")
	ErrTransfer   = errors.New("transfer error")
	ErrValidation = errors.New("validation error")

	// ErrCancelled is a transfer error raised when a ProgressSink asks to stop.
	ErrCancelled = errors.WithMessage(ErrTransfer, "transfer cancelled")
)

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// newError classifies cause under kind. When cause already carries a kind it
// is only annotated.
func newError(kind error, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil && KindOf(cause) != "" {
		return errors.WithMessage(cause, msg)
	}
	return &kindError{kind: kind, msg: msg, cause: cause}
}

// KindOf returns a short label for the kind of err, or "" if unclassified.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrTransfer):
		return "transfer"
	case errors.Is(err, ErrValidation):
		return "validation"
	}
	return ""
}
