// Package ai provides the error classification shared by the speech, chat
// and session providers.
package ai

import (
	"errors"
	"strings"
)

var (
	// ErrRecoverable indicates a transient failure that may succeed if the
	// user retries: session creation failed, socket error, TTS request failed.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal indicates a permanent failure that will not succeed if retried.
	// Examples: invalid API key, malformed request.
	ErrFatal = errors.New("fatal provider error")

	// ErrUnsupported indicates a missing capability: no microphone, no speech
	// recognizer, or microphone permission denied. It is permanent for the
	// lifetime of the session and is never retried automatically.
	ErrUnsupported = errors.New("capability not supported")
)

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is fatal and should not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsUnsupported checks if an error reports a missing capability.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// RetryableError wraps an underlying error with its classification.
type RetryableError struct {
	Underlying error
	Kind       error // one of ErrRecoverable, ErrFatal, ErrUnsupported
	Message    string
}

func (e *RetryableError) Error() string {
	switch {
	case e.Message != "" && e.Underlying != nil:
		return e.Message + ": " + e.Underlying.Error()
	case e.Message != "":
		return e.Message
	case e.Underlying != nil:
		return e.Underlying.Error()
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the classification sentinel and the cause.
func (e *RetryableError) Unwrap() []error {
	if e.Underlying == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Underlying}
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Kind: ErrRecoverable, Message: message}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Kind: ErrFatal, Message: message}
}

// NewUnsupportedError creates a capability error with context.
func NewUnsupportedError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Kind: ErrUnsupported, Message: message}
}

// Describe converts an error into the short message shown to a user.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var re *RetryableError
	if errors.As(err, &re) && re.Message != "" {
		return capitalize(re.Message)
	}
	return capitalize(err.Error())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
