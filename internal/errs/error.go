package errs

import (
	"errors"
	"fmt"
)

// genericServerMessage is the fixed outward phrase for Server and
// Configuration category errors; the full detail is logged, never
// returned to a caller.
const genericServerMessage = "An internal server error occurred"

// Error is the typed error every component returns. Category drives both
// HTTP-façade mapping and retry behaviour upstream.
type Error struct {
	Category  Category
	Retryable bool
	// Message is the sanitised, external-safe message. For Server and
	// Configuration categories this is always genericServerMessage.
	Message string
	// RequestID correlates this error back to a logged detail record.
	RequestID string
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error in the given category with the supplied external
// message, applying the category's default retryability and, for
// Server/Configuration, replacing the outward message with the fixed
// phrase while keeping the real message as the error's cause.
func New(category Category, message string) *Error {
	e := &Error{
		Category:  category,
		Retryable: category.Retryable(),
		Message:   externalMessage(category, message),
	}
	if category == CategoryServer || category == CategoryConfiguration {
		e.cause = errors.New(message)
	}
	return e
}

// Wrap attaches cause to a new categorised Error. The original message is
// kept as the wrapped cause (and is therefore available to logging) even
// when the external Message is replaced by the fixed Server/Configuration
// phrase.
func Wrap(category Category, cause error, message string) *Error {
	e := New(category, message)
	if cause != nil {
		if e.cause != nil {
			cause = fmt.Errorf("%s: %w", message, cause)
		}
		e.cause = cause
	}
	return e
}

// WithRequestID attaches a request id used to correlate the sanitised
// external message with full server-side logs.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithRetryable overrides the category default, used for Cancelled errors
// where retryability depends on whether cancellation was a timeout
// (retryable) or an explicit cancel (not).
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func externalMessage(category Category, message string) string {
	switch category {
	case CategoryServer, CategoryConfiguration:
		return genericServerMessage
	default:
		return Sanitize(message)
	}
}

// As helpers for common categories, mirroring the category-to-status table.

func Client(format string, args ...any) *Error {
	return New(CategoryClient, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) *Error {
	return New(CategoryValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(CategoryNotFound, fmt.Sprintf(format, args...))
}

func Security(format string, args ...any) *Error {
	return New(CategorySecurity, fmt.Sprintf(format, args...))
}

func RateLimit(format string, args ...any) *Error {
	return New(CategoryRateLimit, fmt.Sprintf(format, args...))
}

func Network(cause error, format string, args ...any) *Error {
	return Wrap(CategoryNetwork, cause, fmt.Sprintf(format, args...))
}

func Server(cause error, format string, args ...any) *Error {
	return Wrap(CategoryServer, cause, fmt.Sprintf(format, args...))
}

func Configuration(format string, args ...any) *Error {
	return New(CategoryConfiguration, fmt.Sprintf(format, args...))
}

func Cancelled(format string, args ...any) *Error {
	return New(CategoryCancelled, fmt.Sprintf(format, args...))
}

// CategoryOf extracts the Category from err if it is (or wraps) an *Error,
// defaulting to CategoryServer for anything else — an un-categorised error
// crossing a façade is a bug, and bugs map to 500.
func CategoryOf(err error) Category {
	var e *Error
	if asError(err, &e) {
		return e.Category
	}
	return CategoryServer
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
