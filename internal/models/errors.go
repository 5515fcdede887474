package models

import "fmt"

// ValidationError reports a request field that failed validation. Its
// message is safe to return to API callers.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}
