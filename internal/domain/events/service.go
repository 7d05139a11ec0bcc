package events

import (
	"context"

	"github.com/planora/server/internal/auth"
)

// Service covers the read paths of the catalog: listings and lookups.
// Mutations go through the LifecycleService.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns active events. Inactive events are included only for admins
// asking for them.
func (s *Service) List(ctx context.Context, principal *auth.Principal, filters Filters) ([]Event, error) {
	if filters.IncludeInactive && (principal == nil || !principal.IsAdmin()) {
		filters.IncludeInactive = false
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) GetByID(ctx context.Context, id string) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOrganizer returns an organizer's events, visible to that organizer
// and to admins.
func (s *Service) ListByOrganizer(ctx context.Context, principal auth.Principal, organizerID string) ([]Event, error) {
	if !principal.IsAdmin() && principal.ID != organizerID {
		return nil, ErrForbidden
	}
	return s.repo.ListByOrganizer(ctx, organizerID)
}
