package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("event not open for registration")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrEventFull         = errors.New("event is at capacity")
)

// Registration links a user to an event. One row per (user, event) pair,
// enforced both here and by a unique index in the store.
type Registration struct {
	ID        uuid.UUID
	UserID    string
	EventID   string
	CreatedAt time.Time
}

// Attendee is a registration joined with the attendee's public profile,
// for organizer-facing participant lists.
type Attendee struct {
	Registration
	Name  string
	Email string
}

// RegisteredEvent is a registration joined with its event summary, for a
// user's own dashboard.
type RegisteredEvent struct {
	Registration
	EventTitle string
	EventDate  time.Time
	Location   string
	MainImage  *string
}

// Repository admits registrations. Register is the one atomic decision
// point: it must check capacity and insert in a single transaction holding
// the event row lock, so two concurrent calls can never both be admitted
// into the last seat. Outcomes:
//
//   - ErrNotFound: no active event with that id
//   - ErrAlreadyRegistered: the pair already exists
//   - ErrEventFull: registered count has reached capacity
type Repository interface {
	Register(ctx context.Context, userID, eventID string) (*Registration, error)
	ListByUser(ctx context.Context, userID string) ([]RegisteredEvent, error)
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)
}

// ConfirmationParams is everything the confirmation email needs; it is
// captured at admission time so the notification path never re-reads state
// that a later delete may have removed.
type ConfirmationParams struct {
	RegistrationID uuid.UUID
	UserID         string
	EventID        string
}

// Notifier hands a confirmation off to the background queue. Enqueue
// failures must not fail the admission; the seat is already committed.
type Notifier interface {
	EnqueueConfirmation(ctx context.Context, params ConfirmationParams) error
}
