package errs

import "fmt"

// WrapWithContext wraps err with additional context, preserving it in the
// %w chain. Mirrors the teacher's infrastructure/errors.WrapWithContext.
func WrapWithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// WrapWithContextf is WrapWithContext with a formatted context string.
func WrapWithContextf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return WrapWithContext(err, fmt.Sprintf(format, args...))
}
