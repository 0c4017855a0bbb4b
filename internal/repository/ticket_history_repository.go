package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrydesk/carry-desk/internal/domain"
)

// TicketHistoryRepository is the append-only audit log of ticket mutations.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketNumber string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository returns the Postgres backed audit log.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

const historyColumns = `id, ticket_number, changed_by_id, change_type, old_value, new_value, created_at`

func (r *ticketHistoryRepository) Create(ctx context.Context, h *domain.TicketHistory) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ticket_history (`+historyColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.TicketNumber, h.ChangedByID, string(h.ChangeType), h.OldValue, h.NewValue, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history for ticket %s: %w", h.TicketNumber, err)
	}
	return nil
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketNumber string) ([]domain.TicketHistory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM ticket_history WHERE ticket_number = $1 ORDER BY created_at, id`,
		ticketNumber)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanHistory)
}

func scanHistory(row pgx.CollectableRow) (domain.TicketHistory, error) {
	var (
		h      domain.TicketHistory
		change string
	)
	err := row.Scan(&h.ID, &h.TicketNumber, &h.ChangedByID, &change, &h.OldValue, &h.NewValue, &h.CreatedAt)
	h.ChangeType = domain.TicketChangeType(change)
	return h, err
}
