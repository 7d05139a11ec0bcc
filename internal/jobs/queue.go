package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/planora/server/internal/domain/registrations"
)

// Queue adapts the River client to the domain's Notifier. The admission is
// already committed when this runs; an insert failure surfaces to the
// caller, which logs it and keeps the registration.
type Queue struct {
	client *river.Client[pgx.Tx]
}

func NewQueue(client *river.Client[pgx.Tx]) *Queue {
	return &Queue{client: client}
}

func (q *Queue) EnqueueConfirmation(ctx context.Context, params registrations.ConfirmationParams) error {
	opts := InsertOptsForKind(JobKindConfirmation)
	_, err := q.client.Insert(ctx, ConfirmationArgs{
		RegistrationID: params.RegistrationID.String(),
		UserID:         params.UserID,
		EventID:        params.EventID,
	}, &opts)
	if err != nil {
		return fmt.Errorf("enqueue confirmation: %w", err)
	}
	return nil
}
