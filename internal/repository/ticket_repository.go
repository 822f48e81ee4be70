package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// GetForUpdate reads the ticket and locks its row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error)
	// ListOverdue returns active tickets with a missed deadline at filter.Now, oldest first.
	ListOverdue(ctx context.Context, filter OverdueFilter) ([]domain.Ticket, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Ticket, error)
}

// OverdueFilter narrows ListOverdue. Both conditions apply before the limit so a
// full batch of already handled tickets cannot hide newer ones.
type OverdueFilter struct {
	Now time.Time
	// Unbreached keeps tickets with no sla_breached_at stamp.
	Unbreached bool
	// EscalatedBefore keeps tickets never escalated or last escalated at or before it.
	EscalatedBefore *time.Time
	Limit           int
}

// Matches reports whether an overdue ticket passes the filter's stamp and cooldown conditions.
func (f OverdueFilter) Matches(t *domain.Ticket) bool {
	if f.Unbreached && t.SLABreachedAt != nil {
		return false
	}
	if f.EscalatedBefore != nil && t.LastEscalationAt != nil && t.LastEscalationAt.After(*f.EscalatedBefore) {
		return false
	}
	return true
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, created_by, category_id, subcategory_id, sub_subcategory_id, scope_id, assigned_to,
               status, description, escalation_level, acknowledgement_due_at, resolution_due_at,
               acknowledged_at, resolved_at, last_escalation_at, sla_breached_at, tat_extensions,
               reopen_count, reopened_at, rating, rating_feedback, rated_at, metadata, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (created_by, category_id, subcategory_id, sub_subcategory_id, scope_id, assigned_to,
            status, description, escalation_level, acknowledgement_due_at, resolution_due_at, metadata, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.CreatedBy,
		ticket.CategoryID,
		ticket.SubcategoryID,
		ticket.SubSubcategoryID,
		ticket.ScopeID,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Description,
		ticket.EscalationLevel,
		ticket.AcknowledgementDueAt,
		ticket.ResolutionDueAt,
		ticket.Metadata,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assigned_to=$1, status=$2, escalation_level=$3, acknowledgement_due_at=$4,
            resolution_due_at=$5, acknowledged_at=$6, resolved_at=$7, last_escalation_at=$8, sla_breached_at=$9,
            tat_extensions=$10, reopen_count=$11, reopened_at=$12, rating=$13, rating_feedback=$14, rated_at=$15,
            metadata=$16, updated_at=$17
        WHERE id=$18`
	cmd, err := r.db.Exec(ctx, query,
		ticket.AssignedTo,
		ticket.Status,
		ticket.EscalationLevel,
		ticket.AcknowledgementDueAt,
		ticket.ResolutionDueAt,
		ticket.AcknowledgedAt,
		ticket.ResolvedAt,
		ticket.LastEscalationAt,
		ticket.SLABreachedAt,
		ticket.TATExtensions,
		ticket.ReopenCount,
		ticket.ReopenedAt,
		ticket.Rating,
		ticket.RatingFeedback,
		ticket.RatedAt,
		ticket.Metadata,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) ListOverdue(ctx context.Context, filter OverdueFilter) ([]domain.Ticket, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE status <> 'RESOLVED'
          AND ((acknowledged_at IS NULL AND acknowledgement_due_at < $1) OR resolution_due_at < $1)
          AND ($2::boolean = false OR sla_breached_at IS NULL)
          AND ($3::timestamptz IS NULL OR last_escalation_at IS NULL OR last_escalation_at <= $3)
        ORDER BY created_at ASC, id ASC
        LIMIT $4`
	return r.list(ctx, query, filter.Now, filter.Unbreached, filter.EscalatedBefore, limit)
}

func (r *ticketRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE created_at >= $1 ORDER BY created_at ASC`
	return r.list(ctx, query, since)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.CreatedBy,
		&ticket.CategoryID,
		&ticket.SubcategoryID,
		&ticket.SubSubcategoryID,
		&ticket.ScopeID,
		&ticket.AssignedTo,
		&ticket.Status,
		&ticket.Description,
		&ticket.EscalationLevel,
		&ticket.AcknowledgementDueAt,
		&ticket.ResolutionDueAt,
		&ticket.AcknowledgedAt,
		&ticket.ResolvedAt,
		&ticket.LastEscalationAt,
		&ticket.SLABreachedAt,
		&ticket.TATExtensions,
		&ticket.ReopenCount,
		&ticket.ReopenedAt,
		&ticket.Rating,
		&ticket.RatingFeedback,
		&ticket.RatedAt,
		&ticket.Metadata,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
