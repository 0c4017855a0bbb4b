package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrydesk/carry-desk/internal/domain"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// TicketRepository is the single source of truth for ticket status,
// claim and priority. It does not enforce the one-open-ticket rule;
// the lifecycle controller checks that before calling Create.
type TicketRepository interface {
	NextTicketNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, ticket *domain.Ticket) error
	Get(ctx context.Context, number string) (*domain.Ticket, error)
	HasOpenTicket(ctx context.Context, creatorID string) (bool, error)
	OpenTicket(ctx context.Context, creatorID string) (*domain.Ticket, error)
	OpenTicketChannel(ctx context.Context, creatorID string) (string, bool, error)
	SetClaim(ctx context.Context, number, staffID string) error
	GetClaim(ctx context.Context, number string) (string, error)
	// SetPriorityOnce applies p only when no priority is stored. It
	// reports whether this call won and the value now stored.
	SetPriorityOnce(ctx context.Context, number string, p domain.TicketPriority) (bool, domain.TicketPriority, error)
	Close(ctx context.Context, number string, at time.Time) error
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `number, creator_id, channel_id, category, status, claimed_by, priority, details, created_at, closed_at`

func (r *ticketRepository) NextTicketNumber(ctx context.Context) (string, error) {
	var next int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('ticket_number_seq')`).Scan(&next); err != nil {
		return "", err
	}
	return strconv.FormatInt(next, 10), nil
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	number, err := parseTicketNumber(ticket.Number)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (number, creator_id, channel_id, category, status, claimed_by, priority, details, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = r.pool.Exec(ctx, query,
		number,
		ticket.CreatorID,
		ticket.ChannelID,
		ticket.Category,
		ticket.Status,
		ticket.ClaimedBy,
		nullablePriority(ticket.Priority),
		ticket.Details,
		ticket.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrOpenTicketExists
	}
	return err
}

func (r *ticketRepository) Get(ctx context.Context, number string) (*domain.Ticket, error) {
	n, err := parseTicketNumber(number)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE number=$1`
	return r.fetchSingle(ctx, query, n)
}

func (r *ticketRepository) HasOpenTicket(ctx context.Context, creatorID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE creator_id=$1 AND status='open')`,
		creatorID,
	).Scan(&exists)
	return exists, err
}

func (r *ticketRepository) OpenTicket(ctx context.Context, creatorID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE creator_id=$1 AND status='open' ORDER BY number DESC LIMIT 1`
	return r.fetchSingle(ctx, query, creatorID)
}

func (r *ticketRepository) OpenTicketChannel(ctx context.Context, creatorID string) (string, bool, error) {
	ticket, err := r.OpenTicket(ctx, creatorID)
	if errors.Is(err, ErrTicketNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ticket.ChannelID, ticket.ChannelID != "", nil
}

func (r *ticketRepository) SetClaim(ctx context.Context, number, staffID string) error {
	n, err := parseTicketNumber(number)
	if err != nil {
		return ErrTicketNotFound
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET claimed_by=$2 WHERE number=$1`, n, staffID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (r *ticketRepository) GetClaim(ctx context.Context, number string) (string, error) {
	n, err := parseTicketNumber(number)
	if err != nil {
		return "", ErrTicketNotFound
	}
	var claimedBy string
	err = r.pool.QueryRow(ctx, `SELECT claimed_by FROM tickets WHERE number=$1`, n).Scan(&claimedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTicketNotFound
	}
	if err != nil {
		return "", err
	}
	if claimedBy == "" {
		return domain.Unclaimed, nil
	}
	return claimedBy, nil
}

func (r *ticketRepository) SetPriorityOnce(ctx context.Context, number string, p domain.TicketPriority) (bool, domain.TicketPriority, error) {
	n, err := parseTicketNumber(number)
	if err != nil {
		return false, "", ErrTicketNotFound
	}

	var stored string
	err = r.pool.QueryRow(ctx,
		`UPDATE tickets SET priority=$2 WHERE number=$1 AND priority IS NULL RETURNING priority`,
		n, string(p),
	).Scan(&stored)
	if err == nil {
		return true, domain.TicketPriority(stored), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, "", err
	}

	// Lost the race or the ticket is missing.
	var current *string
	err = r.pool.QueryRow(ctx, `SELECT priority FROM tickets WHERE number=$1`, n).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", ErrTicketNotFound
	}
	if err != nil {
		return false, "", err
	}
	if current == nil {
		return false, "", fmt.Errorf("ticket %s priority unset after conditional update", number)
	}
	return false, domain.TicketPriority(*current), nil
}

func (r *ticketRepository) Close(ctx context.Context, number string, at time.Time) error {
	n, err := parseTicketNumber(number)
	if err != nil {
		return ErrTicketNotFound
	}
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status='closed', closed_at=$2 WHERE number=$1 AND status='open'`,
		n, at,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = r.pool.QueryRow(ctx, `SELECT status FROM tickets WHERE number=$1`, n).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	return ErrTicketAlreadyClosed
}

func (r *ticketRepository) ListByCreator(ctx context.Context, creatorID string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE creator_id=$1 ORDER BY number DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, creatorID, limit)
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

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		number   int64
		priority *string
	)
	if err := row.Scan(
		&number,
		&ticket.CreatorID,
		&ticket.ChannelID,
		&ticket.Category,
		&ticket.Status,
		&ticket.ClaimedBy,
		&priority,
		&ticket.Details,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	ticket.Number = strconv.FormatInt(number, 10)
	if priority != nil {
		ticket.Priority = domain.TicketPriority(*priority)
	}
	return &ticket, nil
}

func parseTicketNumber(number string) (int64, error) {
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil || n <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket number", map[string]any{"number": number})
	}
	return n, nil
}

func nullablePriority(p domain.TicketPriority) *string {
	if p == "" {
		return nil
	}
	s := string(p)
	return &s
}
