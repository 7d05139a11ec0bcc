package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/server/internal/domain/events"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) (*EventRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("event repository: pool is nil")
	}
	return &EventRepository{pool: pool}, nil
}

const eventColumns = `
	e.id, e.organizer_id, u.name, e.title, e.description, e.category,
	e.location, e.date, e.start_time, e.capacity, e.status, e.main_image,
	COALESCE(img.refs, '{}'),
	COALESCE(reg.total, 0),
	e.created_at, e.updated_at`

const eventJoins = `
	JOIN users u ON u.id = e.organizer_id
	LEFT JOIN LATERAL (
		SELECT array_agg(i.image_url ORDER BY i.id) AS refs
		FROM event_images i WHERE i.event_id = e.id
	) img ON true
	LEFT JOIN LATERAL (
		SELECT COUNT(*) AS total
		FROM registrations r WHERE r.event_id = e.id
	) reg ON true`

func scanEvent(row pgx.Row) (*events.Event, error) {
	var e events.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.OrganizerName, &e.Title, &e.Description,
		&e.Category, &e.Location, &e.Date, &e.StartTime, &e.Capacity,
		&e.Status, &e.MainImage, &e.Images, &e.Registered,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepository) List(ctx context.Context, filters events.Filters) ([]events.Event, error) {
	query := `SELECT` + eventColumns + ` FROM events e` + eventJoins + ` WHERE true`
	var args []any
	if !filters.IncludeInactive {
		query += ` AND e.status = 'active'`
	}
	if filters.Category != "" {
		args = append(args, filters.Category)
		query += fmt.Sprintf(` AND e.category = $%d`, len(args))
	}
	query += ` ORDER BY e.date, e.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	event, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT`+eventColumns+` FROM events e`+eventJoins+` WHERE e.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]events.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+eventColumns+` FROM events e`+eventJoins+
			` WHERE e.organizer_id = $1 ORDER BY e.date, e.id`, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list organizer events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, organizer_id, title, description, category,
			location, date, start_time, capacity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		params.ID, params.OrganizerID, params.Title, params.Description,
		params.Category, params.Location, params.Date, params.StartTime,
		params.Capacity, params.Status,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create event: unknown organizer %s", params.OrganizerID)
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	// Read back through the full projection so the caller gets the same
	// shape as every other read path, organizer name included.
	return r.GetByID(ctx, params.ID)
}

// UpdateFields applies the patch under the event row lock. Shrinking
// capacity below the current registration count would strand admitted
// registrations, so it is rejected before the update.
func (r *EventRepository) UpdateFields(ctx context.Context, id string, patch events.Patch) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var capacity int
		err := tx.QueryRow(ctx,
			`SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, id,
		).Scan(&capacity)
		if errors.Is(err, pgx.ErrNoRows) {
			return events.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}

		if patch.Capacity != nil {
			var registered int
			if err := tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, id,
			).Scan(&registered); err != nil {
				return fmt.Errorf("count registrations: %w", err)
			}
			if *patch.Capacity < registered {
				return events.FieldError{
					Field:   "capacity",
					Message: fmt.Sprintf("cannot shrink below %d existing registrations", registered),
				}
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE events SET
				title = COALESCE($2, title),
				description = COALESCE($3, description),
				category = COALESCE($4, category),
				location = COALESCE($5, location),
				date = COALESCE($6, date),
				start_time = COALESCE($7, start_time),
				capacity = COALESCE($8, capacity),
				status = COALESCE($9, status),
				updated_at = now()
			WHERE id = $1`,
			id, patch.Title, patch.Description, patch.Category, patch.Location,
			patch.Date, patch.StartTime, patch.Capacity, patch.Status,
		)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return nil
	})
}

func (r *EventRepository) SetMainImage(ctx context.Context, id string, ref *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET main_image = $2, updated_at = now() WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("set main image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) AddImage(ctx context.Context, eventID, ref string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO event_images (event_id, image_url) VALUES ($1, $2)
		 ON CONFLICT (event_id, image_url) DO NOTHING`, eventID, ref)
	if err != nil {
		if isForeignKeyViolation(err) {
			return events.ErrNotFound
		}
		return fmt.Errorf("add image: %w", err)
	}
	return nil
}

func (r *EventRepository) RemoveImage(ctx context.Context, eventID, ref string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM event_images WHERE event_id = $1 AND image_url = $2`, eventID, ref)
	if err != nil {
		return false, fmt.Errorf("remove image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteCascade removes the event's image rows, registration rows and the
// event row itself in one transaction. The row lock serializes the cascade
// against concurrent admissions and field updates on the same event;
// ON DELETE CASCADE on the child tables remains a backstop.
func (r *EventRepository) DeleteCascade(ctx context.Context, eventID string) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx,
			`SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return events.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM event_images WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("delete image rows: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM registrations WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("delete registrations: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM events WHERE id = $1`, eventID); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
}

func (r *EventRepository) SetStatus(ctx context.Context, id string, status events.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}
