package spec

import "fmt"

// ValidationError reports a malformed schedule document. It is surfaced to
// the caller of a load operation and never disturbs a running scheduler.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid schedule: %v", e.Err)
	}
	return fmt.Sprintf("invalid schedule: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func validationErr(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}
