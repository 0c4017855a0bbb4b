package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrydesk/carry-desk/internal/domain"
)

// FeedbackRepository stores one feedback record per ticket.
type FeedbackRepository interface {
	// CreateOnce stores fb unless a record exists for the same ticket,
	// in which case ErrFeedbackExists is returned and nothing changes.
	CreateOnce(ctx context.Context, fb *domain.Feedback) error
	// Get returns nil without error when the ticket has no feedback.
	Get(ctx context.Context, ticketNumber string) (*domain.Feedback, error)
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository instantiates repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

func (r *feedbackRepository) CreateOnce(ctx context.Context, fb *domain.Feedback) error {
	const query = `
        INSERT INTO feedback (ticket_number, user_id, rating, feedback, suggestions, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (ticket_number) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		fb.TicketNumber,
		fb.UserID,
		fb.Rating,
		fb.Feedback,
		fb.Suggestions,
		fb.CreatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFeedbackExists
	}
	return nil
}

func (r *feedbackRepository) Get(ctx context.Context, ticketNumber string) (*domain.Feedback, error) {
	const query = `
        SELECT ticket_number, user_id, rating, feedback, suggestions, created_at
        FROM feedback WHERE ticket_number=$1`
	var fb domain.Feedback
	err := r.pool.QueryRow(ctx, query, ticketNumber).Scan(
		&fb.TicketNumber,
		&fb.UserID,
		&fb.Rating,
		&fb.Feedback,
		&fb.Suggestions,
		&fb.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fb, nil
}
