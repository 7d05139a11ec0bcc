package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/server/internal/domain/registrations"
)

type RegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(pool *pgxpool.Pool) (*RegistrationRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("registration repository: pool is nil")
	}
	return &RegistrationRepository{pool: pool}, nil
}

// Register is the admission transaction. The event row lock makes the
// capacity check and the insert one atomic step: a concurrent caller blocks
// on the lock and re-reads the count after this transaction commits, so the
// capacity invariant holds without a stored counter.
func (r *RegistrationRepository) Register(ctx context.Context, userID, eventID string) (*registrations.Registration, error) {
	reg := &registrations.Registration{
		ID:      uuid.New(),
		UserID:  userID,
		EventID: eventID,
	}

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var capacity int
		err := tx.QueryRow(ctx,
			`SELECT capacity FROM events WHERE id = $1 AND status = 'active' FOR UPDATE`,
			eventID,
		).Scan(&capacity)
		if errors.Is(err, pgx.ErrNoRows) {
			return registrations.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}

		var exists bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM registrations WHERE user_id = $1 AND event_id = $2)`,
			userID, eventID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			return registrations.ErrAlreadyRegistered
		}

		var registered int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID,
		).Scan(&registered)
		if err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if registered >= capacity {
			return registrations.ErrEventFull
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO registrations (id, user_id, event_id)
			 VALUES ($1, $2, $3) RETURNING created_at`,
			reg.ID, userID, eventID,
		).Scan(&reg.CreatedAt)
		if err != nil {
			// Unique index backstop; unreachable while the lock is held
			// but cheap to map correctly.
			if isUniqueViolation(err) {
				return registrations.ErrAlreadyRegistered
			}
			if isForeignKeyViolation(err) {
				return registrations.ErrNotFound
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *RegistrationRepository) ListByUser(ctx context.Context, userID string) ([]registrations.RegisteredEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.user_id, r.event_id, r.created_at,
			e.title, e.date, e.location, e.main_image
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1
		ORDER BY e.date, r.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []registrations.RegisteredEvent
	for rows.Next() {
		var re registrations.RegisteredEvent
		err := rows.Scan(
			&re.ID, &re.UserID, &re.EventID, &re.CreatedAt,
			&re.EventTitle, &re.EventDate, &re.Location, &re.MainImage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func (r *RegistrationRepository) ListAttendees(ctx context.Context, eventID string) ([]registrations.Attendee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.user_id, r.event_id, r.created_at, u.name, u.email
		FROM registrations r
		JOIN users u ON u.id = r.user_id
		WHERE r.event_id = $1
		ORDER BY r.created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []registrations.Attendee
	for rows.Next() {
		var a registrations.Attendee
		err := rows.Scan(&a.ID, &a.UserID, &a.EventID, &a.CreatedAt, &a.Name, &a.Email)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
