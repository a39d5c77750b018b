// Package errs defines the error taxonomy shared by every subsystem.
// Each wrapped error carries a Kind so callers can branch on category
// (surface vs. retry vs. fatal) without string matching.
package errs

import "fmt"

// Kind classifies an error for propagation decisions.
type Kind string

const (
	Validation      Kind = "Validation"
	Authentication  Kind = "Authentication"
	Permission      Kind = "Permission"
	Session         Kind = "Session"
	NotFound        Kind = "NotFound"
	Trading         Kind = "Trading"
	RateLimit       Kind = "RateLimit"
	ExternalService Kind = "ExternalService"
	DataIntegrity   Kind = "DataIntegrity"
	Crypto          Kind = "Crypto"
	Database        Kind = "Database"
	WebSocket       Kind = "WebSocket"
	Compression     Kind = "Compression"
	Config          Kind = "Config"
)

// Error wraps an underlying cause with a Kind and a human message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a Kind-tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether the Kind should be retried with backoff
// (RateLimit, ExternalService) rather than surfaced immediately.
func (k Kind) Retryable() bool {
	return k == RateLimit || k == ExternalService
}

// Fatal reports whether the Kind represents an unrecoverable condition for
// the affected operation (DataIntegrity, Crypto, Config).
func (k Kind) Fatal() bool {
	return k == DataIntegrity || k == Crypto || k == Config
}
