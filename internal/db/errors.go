package db

import (
	"fmt"
	"strconv"
)

// ValidationError reports a malformed identifier handed to a repository.
// Malformed ids are rejected rather than stored verbatim.
type ValidationError struct {
	Field string
	Value string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// ParseID validates and converts a string-form record id
func ParseID(field, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: field, Value: value}
	}
	return id, nil
}
