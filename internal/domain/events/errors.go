package events

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("not authorized for this event")
)

// FieldError is an expected validation outcome, distinguishable from storage
// faults at the type level.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseStatus validates the status enum coming from a request.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusActive, StatusInactive:
		return Status(value), nil
	default:
		return "", FieldError{Field: "status", Message: "must be active or inactive"}
	}
}
