package shared

import (
	"errors"
	"fmt"
)

// ValidationError reports input that fails a domain rule. It carries the
// offending field and value so callers can surface them verbatim.
type ValidationError struct {
	Field  string
	Value  any
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Detail)
	}
	return fmt.Sprintf("validation: %s: %s (got %v)", e.Field, e.Detail, e.Value)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field string, value any, detail string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Detail: detail}
}

// PolicyError reports an action forbidden by business policy, such as
// removing a protected work item or approving a declined one.
type PolicyError struct {
	Detail string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy: %s", e.Detail)
}

// NewPolicyError constructs a PolicyError.
func NewPolicyError(detail string) *PolicyError {
	return &PolicyError{Detail: detail}
}

// StateError reports an operation invalid for the record's current state.
// Current is included so the caller can resync.
type StateError struct {
	Current string
	Detail  string
}

func (e *StateError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("state: %s", e.Detail)
	}
	return fmt.Sprintf("state: %s (current: %s)", e.Detail, e.Current)
}

// NewStateError constructs a StateError.
func NewStateError(current, detail string) *StateError {
	return &StateError{Current: current, Detail: detail}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFoundError constructs a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
