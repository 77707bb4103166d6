package models

import (
	"fmt"
	"strings"
)

// Violation names one broken invariant of a canonical record.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Value  any    `json:"value,omitempty"`
}

func (v Violation) String() string {
	if v.Value != nil {
		return fmt.Sprintf("%s %s (got %v)", v.Field, v.Reason, v.Value)
	}
	return v.Field + " " + v.Reason
}

type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid product: " + strings.Join(parts, "; ")
}

// Field returns the field of the first violation.
func (e *ValidationError) Field() string {
	if len(e.Violations) == 0 {
		return ""
	}
	return e.Violations[0].Field
}
