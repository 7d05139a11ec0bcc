package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/planora/server/internal/domain/events"
	"github.com/planora/server/internal/domain/users"
	"github.com/planora/server/internal/email"
	"github.com/planora/server/internal/media"
)

// ConfirmationArgs carries a committed registration to the confirmation
// worker. Only ids cross the queue; the worker re-reads current state.
type ConfirmationArgs struct {
	RegistrationID string `json:"registration_id"`
	UserID         string `json:"user_id"`
	EventID        string `json:"event_id"`
}

func (ConfirmationArgs) Kind() string { return JobKindConfirmation }

// ConfirmationWorker sends the registration confirmation email. The user or
// event may be gone by the time the job runs; that drops the job rather
// than retrying it, there is nobody left to mail.
type ConfirmationWorker struct {
	river.WorkerDefaults[ConfirmationArgs]
	Users  users.Repository
	Events events.Repository
	Email  *email.Service
	Logger zerolog.Logger
}

func (ConfirmationWorker) Kind() string { return JobKindConfirmation }

func (w ConfirmationWorker) Work(ctx context.Context, job *river.Job[ConfirmationArgs]) error {
	if w.Email == nil {
		return fmt.Errorf("email service not configured")
	}

	user, err := w.Users.GetByID(ctx, job.Args.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			w.Logger.Info().Str("user_id", job.Args.UserID).Msg("confirmation dropped, user gone")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	event, err := w.Events.GetByID(ctx, job.Args.EventID)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			w.Logger.Info().Str("event_id", job.Args.EventID).Msg("confirmation dropped, event gone")
			return nil
		}
		return fmt.Errorf("load event: %w", err)
	}

	return w.Email.SendConfirmation(ctx, user.Email, email.ConfirmationData{
		Name:       user.Name,
		EventTitle: event.Title,
		EventDate:  event.Date.Format("2006-01-02"),
		StartTime:  event.StartTime,
		Location:   event.Location,
	})
}

// MediaSweepArgs runs an orphaned-blob sweep.
type MediaSweepArgs struct{}

func (MediaSweepArgs) Kind() string { return JobKindMediaSweep }

// sweepGracePeriod keeps the sweep from racing an in-flight upload whose
// row has not landed yet.
const sweepGracePeriod = time.Hour

// MediaSweepWorker deletes blobs that no event row references. Aborted
// lifecycle operations can leak blobs (never rows); this is the reclaim
// path. Only stores that can enumerate their blobs are sweepable.
type MediaSweepWorker struct {
	river.WorkerDefaults[MediaSweepArgs]
	Store  media.Store
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func (MediaSweepWorker) Kind() string { return JobKindMediaSweep }

func (w MediaSweepWorker) Work(ctx context.Context, job *river.Job[MediaSweepArgs]) error {
	lister, ok := w.Store.(media.Lister)
	if !ok {
		return nil
	}
	if w.Pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	referenced, err := w.referencedRefs(ctx)
	if err != nil {
		return err
	}

	blobs, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}

	cutoff := time.Now().Add(-sweepGracePeriod)
	var swept int
	for _, blob := range blobs {
		if referenced[blob.Ref] || blob.ModTime.After(cutoff) {
			continue
		}
		if err := w.Store.Delete(ctx, blob.Ref); err != nil {
			w.Logger.Error().Err(err).Str("ref", blob.Ref).Msg("sweep delete failed")
			continue
		}
		swept++
	}
	if swept > 0 {
		w.Logger.Info().Int("swept", swept).Msg("orphaned blobs reclaimed")
	}
	return nil
}

func (w MediaSweepWorker) referencedRefs(ctx context.Context) (map[string]bool, error) {
	const query = `
		SELECT main_image FROM events WHERE main_image IS NOT NULL
		UNION
		SELECT image_url FROM event_images`

	rows, err := w.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query referenced refs: %w", err)
	}
	defer rows.Close()

	referenced := map[string]bool{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		referenced[ref] = true
	}
	return referenced, rows.Err()
}

// NewWorkers registers every worker the server runs.
func NewWorkers(confirmation ConfirmationWorker, sweep MediaSweepWorker) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[ConfirmationArgs](workers, confirmation)
	river.AddWorker[MediaSweepArgs](workers, sweep)
	return workers
}
