package events

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateInput is the untrusted create_event payload. OrganizerID is honored
// only when the caller is an admin assigning the event to someone else.
type CreateInput struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	Category    string `validate:"max=100"`
	Location    string `validate:"required,max=300"`
	Date        string `validate:"required,datetime=2006-01-02"`
	StartTime   string `validate:"omitempty,datetime=15:04"`
	Capacity    int    `validate:"required,gt=0,lte=100000"`
	OrganizerID string `validate:"omitempty,max=26"`
}

// UpdateInput is the untrusted update_event payload. Nil fields are left
// unchanged. Status is admin-only and checked by the lifecycle service.
type UpdateInput struct {
	Title          *string `validate:"omitempty,min=1,max=200"`
	Description    *string `validate:"omitempty,max=5000"`
	Category       *string `validate:"omitempty,max=100"`
	Location       *string `validate:"omitempty,min=1,max=300"`
	Date           *string `validate:"omitempty,datetime=2006-01-02"`
	StartTime      *string `validate:"omitempty,datetime=15:04"`
	Capacity       *int    `validate:"omitempty,gt=0,lte=100000"`
	Status         *string `validate:"-"`
	ImagesToDelete []string
}

func (in CreateInput) validateInput() error {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return asFieldError(err)
	}
	return nil
}

func (in UpdateInput) validateInput() error {
	if err := validate.Struct(in); err != nil {
		return asFieldError(err)
	}
	if in.Status != nil {
		if _, err := ParseStatus(*in.Status); err != nil {
			return err
		}
	}
	return nil
}

// asFieldError converts the first validator violation into the domain's
// FieldError so handlers never see library error types.
func asFieldError(err error) error {
	var violations validator.ValidationErrors
	if !errors.As(err, &violations) || len(violations) == 0 {
		return FieldError{Message: err.Error()}
	}
	v := violations[0]
	return FieldError{
		Field:   strings.ToLower(v.Field()),
		Message: "fails " + v.Tag() + " validation",
	}
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, FieldError{Field: "date", Message: "must be a YYYY-MM-DD date"}
	}
	return parsed, nil
}
