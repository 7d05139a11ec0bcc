package events

import (
	"context"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Event is an authored event together with its image refs and the derived
// registration count. The count is never stored; it is always counted from
// registration rows so it cannot drift.
type Event struct {
	ID            string
	OrganizerID   string
	OrganizerName string
	Title         string
	Description   string
	Category      string
	Location      string
	Date          time.Time
	StartTime     string
	Capacity      int
	Status        Status
	MainImage     *string
	Images        []string
	Registered    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ownsGalleryRef reports whether ref is one of this event's gallery rows.
func (e *Event) ownsGalleryRef(ref string) bool {
	for _, existing := range e.Images {
		if existing == ref {
			return true
		}
	}
	return false
}

type Filters struct {
	IncludeInactive bool
	Category        string
}

type CreateParams struct {
	ID          string
	OrganizerID string
	Title       string
	Description string
	Category    string
	Location    string
	Date        time.Time
	StartTime   string
	Capacity    int
	Status      Status
}

// Patch carries the field updates of update_event. Nil means leave unchanged.
type Patch struct {
	Title       *string
	Description *string
	Category    *string
	Location    *string
	Date        *time.Time
	StartTime   *string
	Capacity    *int
	Status      *Status
}

func (p Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Location == nil && p.Date == nil && p.StartTime == nil &&
		p.Capacity == nil && p.Status == nil
}

// Repository is the event catalog store. Multi-row methods run in their own
// transaction and lock the event row first, so concurrent lifecycle
// operations on one event serialize at the store.
type Repository interface {
	List(ctx context.Context, filters Filters) ([]Event, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]Event, error)

	Create(ctx context.Context, params CreateParams) (*Event, error)
	// UpdateFields applies the patch; shrinking capacity below the current
	// registration count fails with a FieldError.
	UpdateFields(ctx context.Context, id string, patch Patch) error
	SetMainImage(ctx context.Context, id string, ref *string) error
	AddImage(ctx context.Context, eventID, ref string) error
	// RemoveImage reports whether a row existed; removing an absent row is
	// not an error so image deletion stays idempotent.
	RemoveImage(ctx context.Context, eventID, ref string) (bool, error)
	// DeleteCascade removes the event's image rows, registration rows and
	// the event row itself in one transaction under the event row lock.
	DeleteCascade(ctx context.Context, eventID string) error
	SetStatus(ctx context.Context, id string, status Status) error
}
