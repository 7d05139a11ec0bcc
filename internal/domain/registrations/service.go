package registrations

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/domain/events"
)

// Service is the admission controller. The capacity decision itself lives in
// the repository transaction; the service adds authorization, notification
// hand-off and read paths.
type Service struct {
	repo     Repository
	events   events.Repository
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, eventsRepo events.Repository, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		events:   eventsRepo,
		notifier: notifier,
		logger:   logger.With().Str("component", "admissions").Logger(),
	}
}

// Register admits the caller into the event, or reports why not. On success
// a confirmation is enqueued; if the enqueue fails the admission still
// stands and the failure is only logged.
func (s *Service) Register(ctx context.Context, principal auth.Principal, eventID string) (*Registration, error) {
	reg, err := s.repo.Register(ctx, principal.ID, eventID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		params := ConfirmationParams{
			RegistrationID: reg.ID,
			UserID:         reg.UserID,
			EventID:        reg.EventID,
		}
		if err := s.notifier.EnqueueConfirmation(ctx, params); err != nil {
			s.logger.Error().Err(err).
				Str("registration_id", reg.ID.String()).
				Str("event_id", eventID).
				Msg("confirmation enqueue failed, registration kept")
		}
	}

	return reg, nil
}

// ListMine returns the caller's registrations with event summaries.
func (s *Service) ListMine(ctx context.Context, principal auth.Principal) ([]RegisteredEvent, error) {
	return s.repo.ListByUser(ctx, principal.ID)
}

// ListAttendees returns an event's participant list, visible to the event's
// organizer and to admins.
func (s *Service) ListAttendees(ctx context.Context, principal auth.Principal, eventID string) ([]Attendee, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && event.OrganizerID != principal.ID {
		return nil, events.ErrForbidden
	}
	return s.repo.ListAttendees(ctx, eventID)
}
