package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// OutboxRepository persists intents-to-notify next to the state changes they describe.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error
	// FetchUnpublished locks up to limit pending events, skipping rows held by other relays.
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// MarkDelivered records that publisher accepted the event so retries skip it.
	MarkDelivered(ctx context.Context, id string, publisher string) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.OutboxEvent, error)
}

type outboxRepository struct {
	db DBTX
}

// NewOutboxRepository builds the repository.
func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

const outboxColumns = `id, event_type, ticket_id, actor, payload, created_at, published_at, attempts, last_error, delivered_to`

func (r *outboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	const query = `
        INSERT INTO outbox_events (id, event_type, ticket_id, actor, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.EventType,
		event.TicketID,
		event.Actor,
		[]byte(event.Payload),
		event.CreatedAt,
	)
	return err
}

func (r *outboxRepository) FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + outboxColumns + `
        FROM outbox_events
        WHERE published_at IS NULL AND ($2 <= 0 OR attempts < $2)
        ORDER BY created_at ASC
        LIMIT $1
        FOR UPDATE SKIP LOCKED`
	return r.list(ctx, query, limit, maxAttempts)
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outbox_events SET published_at=$1, attempts=attempts+1, last_error=NULL WHERE id=$2`
	cmd, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	const query = `UPDATE outbox_events SET attempts=attempts+1, last_error=$1 WHERE id=$2`
	cmd, err := r.db.Exec(ctx, query, reason, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, publisher string) error {
	const query = `
        UPDATE outbox_events
        SET delivered_to = CASE WHEN $1 = ANY(delivered_to) THEN delivered_to ELSE array_append(delivered_to, $1) END
        WHERE id=$2`
	cmd, err := r.db.Exec(ctx, query, publisher, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *outboxRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE ticket_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, query, ticketID)
}

func (r *outboxRepository) list(ctx context.Context, query string, args ...any) ([]domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboxEvent
	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.TicketID,
			&event.Actor,
			&payload,
			&event.CreatedAt,
			&event.PublishedAt,
			&event.Attempts,
			&event.LastError,
			&event.DeliveredTo,
		); err != nil {
			return nil, err
		}
		event.Payload = payload
		result = append(result, event)
	}
	return result, rows.Err()
}
