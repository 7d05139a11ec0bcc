package events

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/domain/ids"
	"github.com/planora/server/internal/media"
)

// BlobInput is an image upload accompanying create_event or update_event.
type BlobInput struct {
	Name   string
	Reader io.Reader
}

// LifecycleService owns every multi-row, multi-blob transition of an event:
// create, update, delete, single-image delete and status flips. Its job is to
// leave no row referencing an unstored blob and no orphaned row behind a
// completed operation. Ordering rules:
//
//   - a row is inserted only after its blob is confirmed stored;
//   - a row is removed only after its blob deletion is confirmed (blob
//     deletes are idempotent, so an absent blob counts as confirmed);
//   - the event row itself goes last on delete, keeping a partially cleaned
//     event reachable for retry.
//
// An abort can therefore leak at most unreferenced blobs, which the media
// sweep job reclaims later.
type LifecycleService struct {
	repo   Repository
	store  media.Store
	logger zerolog.Logger
}

func NewLifecycleService(repo Repository, store media.Store, logger zerolog.Logger) *LifecycleService {
	return &LifecycleService{
		repo:   repo,
		store:  store,
		logger: logger.With().Str("component", "event_lifecycle").Logger(),
	}
}

// Create persists the event row first so an id exists for the image rows to
// reference, then stores blobs and inserts their rows one by one. If any
// step fails, everything this operation created is removed again.
func (s *LifecycleService) Create(ctx context.Context, principal auth.Principal, in CreateInput, mainImage *BlobInput, gallery []BlobInput) (*Event, error) {
	if !principal.CanManage() {
		return nil, ErrForbidden
	}
	if err := in.validateInput(); err != nil {
		return nil, err
	}

	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}

	organizerID := principal.ID
	if principal.IsAdmin() && in.OrganizerID != "" {
		organizerID = in.OrganizerID
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint event id: %w", err)
	}

	event, err := s.repo.Create(ctx, CreateParams{
		ID:          id,
		OrganizerID: organizerID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Date:        date,
		StartTime:   in.StartTime,
		Capacity:    in.Capacity,
		Status:      StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	var stored []string
	fail := func(cause error) (*Event, error) {
		s.rollbackCreate(ctx, event.ID, stored)
		return nil, cause
	}

	if mainImage != nil {
		ref, err := s.store.Put(ctx, mainImage.Reader, mainImage.Name)
		if err != nil {
			return fail(fmt.Errorf("store main image: %w", err))
		}
		stored = append(stored, ref)
		if err := s.repo.SetMainImage(ctx, event.ID, &ref); err != nil {
			return fail(fmt.Errorf("set main image: %w", err))
		}
		event.MainImage = &ref
	}

	for _, blob := range gallery {
		ref, err := s.store.Put(ctx, blob.Reader, blob.Name)
		if err != nil {
			return fail(fmt.Errorf("store gallery image: %w", err))
		}
		stored = append(stored, ref)
		if err := s.repo.AddImage(ctx, event.ID, ref); err != nil {
			return fail(fmt.Errorf("add gallery image: %w", err))
		}
		event.Images = append(event.Images, ref)
	}

	return event, nil
}

// rollbackCreate undoes a failed create: blobs stored by this operation are
// deleted before their rows so nothing is left referencing an unstored blob,
// then every row goes in one transaction.
func (s *LifecycleService) rollbackCreate(ctx context.Context, eventID string, stored []string) {
	for _, ref := range stored {
		if err := s.store.Delete(ctx, ref); err != nil {
			s.logger.Error().Err(err).Str("event_id", eventID).Str("ref", ref).Msg("rollback blob delete failed")
		}
	}
	if err := s.repo.DeleteCascade(ctx, eventID); err != nil {
		s.logger.Error().Err(err).Str("event_id", eventID).Msg("rollback event rows failed")
	}
}

// Update applies image deletions first, then the main-image replacement,
// then image additions, then the field patch.
func (s *LifecycleService) Update(ctx context.Context, principal auth.Principal, eventID string, in UpdateInput, newMain *BlobInput, gallery []BlobInput) (*Event, error) {
	event, err := s.authorize(ctx, principal, eventID)
	if err != nil {
		return nil, err
	}
	if err := in.validateInput(); err != nil {
		return nil, err
	}
	if in.Status != nil && !principal.IsAdmin() {
		return nil, ErrForbidden
	}

	// Deletions first. The ref is caller supplied, so only refs that are
	// this event's gallery rows reach the store; anything else is either
	// already deleted or another event's blob, and both are skipped. Blob
	// delete is confirmed before the row goes.
	for _, ref := range in.ImagesToDelete {
		if !event.ownsGalleryRef(ref) {
			continue
		}
		if err := s.store.Delete(ctx, ref); err != nil {
			return nil, fmt.Errorf("delete image blob: %w", err)
		}
		if _, err := s.repo.RemoveImage(ctx, eventID, ref); err != nil {
			return nil, fmt.Errorf("remove image row: %w", err)
		}
	}

	// Main image replacement: the old blob is deleted only after the new
	// one is durably stored and the row points at it, so a failure never
	// leaves the event without a valid main image.
	if newMain != nil {
		ref, err := s.store.Put(ctx, newMain.Reader, newMain.Name)
		if err != nil {
			return nil, fmt.Errorf("store main image: %w", err)
		}
		if err := s.repo.SetMainImage(ctx, eventID, &ref); err != nil {
			if delErr := s.store.Delete(ctx, ref); delErr != nil {
				s.logger.Error().Err(delErr).Str("ref", ref).Msg("orphaned main image blob")
			}
			return nil, fmt.Errorf("set main image: %w", err)
		}
		if event.MainImage != nil {
			if err := s.store.Delete(ctx, *event.MainImage); err != nil {
				// The row already points at the new blob; the old one
				// is an unreferenced leak for the sweep job.
				s.logger.Warn().Err(err).Str("ref", *event.MainImage).Msg("old main image not deleted")
			}
		}
	}

	// Additions second: row only after its blob is stored.
	var added []string
	for _, blob := range gallery {
		ref, err := s.store.Put(ctx, blob.Reader, blob.Name)
		if err != nil {
			s.rollbackAdded(ctx, eventID, added)
			return nil, fmt.Errorf("store gallery image: %w", err)
		}
		if err := s.repo.AddImage(ctx, eventID, ref); err != nil {
			s.rollbackAdded(ctx, eventID, append(added, ref))
			return nil, fmt.Errorf("add gallery image: %w", err)
		}
		added = append(added, ref)
	}

	patch, err := buildPatch(in)
	if err != nil {
		return nil, err
	}
	if !patch.IsZero() {
		if err := s.repo.UpdateFields(ctx, eventID, patch); err != nil {
			return nil, err
		}
	}

	return s.repo.GetByID(ctx, eventID)
}

func (s *LifecycleService) rollbackAdded(ctx context.Context, eventID string, refs []string) {
	for _, ref := range refs {
		if err := s.store.Delete(ctx, ref); err != nil {
			s.logger.Error().Err(err).Str("event_id", eventID).Str("ref", ref).Msg("rollback blob delete failed")
			continue
		}
		if _, err := s.repo.RemoveImage(ctx, eventID, ref); err != nil {
			s.logger.Error().Err(err).Str("event_id", eventID).Str("ref", ref).Msg("rollback image row failed")
		}
	}
}

// Delete cascades in a fixed order: gallery blobs, the main image blob, and
// then every row in one transaction under the event row lock, with the event
// row last inside it. No row disappears before its blob deletion is
// confirmed, the row lock serializes the cascade against concurrent
// admissions and updates on the same event, and an interruption before
// commit leaves the event fully reachable for retry.
func (s *LifecycleService) Delete(ctx context.Context, principal auth.Principal, eventID string) error {
	event, err := s.authorize(ctx, principal, eventID)
	if err != nil {
		return err
	}

	for _, ref := range event.Images {
		if err := s.store.Delete(ctx, ref); err != nil {
			return fmt.Errorf("delete gallery blob: %w", err)
		}
	}
	if event.MainImage != nil {
		if err := s.store.Delete(ctx, *event.MainImage); err != nil {
			return fmt.Errorf("delete main image blob: %w", err)
		}
	}
	if err := s.repo.DeleteCascade(ctx, eventID); err != nil {
		return fmt.Errorf("delete event rows: %w", err)
	}
	return nil
}

// DeleteImage removes a single gallery image. Deleting the same ref twice
// succeeds both times; the second call is a no-op. A ref that is not one of
// the event's gallery rows never reaches the store, so a caller cannot
// destroy another event's blob through their own event.
func (s *LifecycleService) DeleteImage(ctx context.Context, principal auth.Principal, eventID, ref string) error {
	event, err := s.authorize(ctx, principal, eventID)
	if err != nil {
		return err
	}
	if !event.ownsGalleryRef(ref) {
		return nil
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete image blob: %w", err)
	}
	if _, err := s.repo.RemoveImage(ctx, eventID, ref); err != nil {
		return fmt.Errorf("remove image row: %w", err)
	}
	return nil
}

// SetStatus is the admin-only active/inactive flip. It cascades nothing: an
// inactive event keeps its registrations and images.
func (s *LifecycleService) SetStatus(ctx context.Context, principal auth.Principal, eventID string, status string) error {
	if !principal.IsAdmin() {
		return ErrForbidden
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return err
	}
	return s.repo.SetStatus(ctx, eventID, parsed)
}

func (s *LifecycleService) authorize(ctx context.Context, principal auth.Principal, eventID string) (*Event, error) {
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && event.OrganizerID != principal.ID {
		return nil, ErrForbidden
	}
	return event, nil
}

func buildPatch(in UpdateInput) (Patch, error) {
	patch := Patch{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		StartTime:   in.StartTime,
		Capacity:    in.Capacity,
	}
	if in.Date != nil {
		date, err := parseDate(*in.Date)
		if err != nil {
			return Patch{}, err
		}
		patch.Date = &date
	}
	if in.Status != nil {
		status, err := ParseStatus(*in.Status)
		if err != nil {
			return Patch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}
