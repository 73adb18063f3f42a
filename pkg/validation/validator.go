// Package validation checks records that enter the system from outside:
// snapshots loaded from storage or files and API requests.
package validation

import (
	"fmt"
	"strings"
)

// Validator is implemented by types with their own structural checks.
type Validator interface {
	Validate() error
}

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Prefix returns a copy with every field name prefixed, e.g. "nodes[2].".
func (e ValidationErrors) Prefix(p string) ValidationErrors {
	out := make(ValidationErrors, len(e))
	for i, v := range e {
		v.Field = p + v.Field
		out[i] = v
	}
	return out
}
