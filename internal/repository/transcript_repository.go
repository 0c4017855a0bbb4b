package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrydesk/carry-desk/internal/domain"
)

// MaxSearchResults caps transcript searches.
const MaxSearchResults = 50

// TranscriptRepository is the document store behind the transcript API.
type TranscriptRepository interface {
	// Save inserts t and bumps the owner's transcript counters. t.ID and
	// t.SavedAt must already be set.
	Save(ctx context.Context, t *domain.Transcript) error
	// ListByUser returns summaries (no messages) newest closed first.
	ListByUser(ctx context.Context, userID string) ([]domain.Transcript, error)
	Get(ctx context.Context, ticketNumber, userID string) (*domain.Transcript, error)
	Search(ctx context.Context, filter domain.TranscriptFilter) ([]domain.Transcript, error)
	UserStats(ctx context.Context, userID string) (*domain.UserTranscriptStats, error)
	Stats(ctx context.Context, since time.Time) (*domain.TranscriptStats, error)
	Ping(ctx context.Context) error
}

type transcriptRepository struct {
	pool *pgxpool.Pool
}

// NewTranscriptRepository instantiates repository.
func NewTranscriptRepository(pool *pgxpool.Pool) TranscriptRepository {
	return &transcriptRepository{pool: pool}
}

const transcriptSummaryColumns = `id, ticket_number, user_id, category, status, created_at, closed_at, closing_reason`

func (r *transcriptRepository) Save(ctx context.Context, t *domain.Transcript) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `
        INSERT INTO transcripts (id, ticket_number, user_id, category, status, created_at, closed_at,
            closed_by, closing_reason, messages, details, claimed_by, saved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	if _, err := tx.Exec(ctx, insert,
		t.ID,
		t.TicketNumber,
		t.UserID,
		t.Category,
		t.Status,
		t.CreatedAt,
		t.ClosedAt,
		t.ClosedBy,
		t.ClosingReason,
		t.Messages,
		t.Details,
		t.ClaimedBy,
		t.SavedAt,
	); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}

	const upsertUser = `
        INSERT INTO transcript_users (user_id, transcript_count, last_ticket_date, member_since)
        VALUES ($1, 1, $2, $2)
        ON CONFLICT (user_id) DO UPDATE
        SET transcript_count = transcript_users.transcript_count + 1, last_ticket_date = EXCLUDED.last_ticket_date`
	if _, err := tx.Exec(ctx, upsertUser, t.UserID, t.SavedAt); err != nil {
		return fmt.Errorf("update transcript user: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *transcriptRepository) ListByUser(ctx context.Context, userID string) ([]domain.Transcript, error) {
	query := `SELECT ` + transcriptSummaryColumns + ` FROM transcripts WHERE user_id=$1 ORDER BY closed_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTranscriptSummaries(rows)
}

func (r *transcriptRepository) Get(ctx context.Context, ticketNumber, userID string) (*domain.Transcript, error) {
	const query = `
        SELECT id, ticket_number, user_id, category, status, created_at, closed_at, closed_by,
               closing_reason, messages, details, claimed_by, saved_at
        FROM transcripts WHERE ticket_number=$1 AND user_id=$2
        ORDER BY saved_at DESC LIMIT 1`
	var t domain.Transcript
	err := r.pool.QueryRow(ctx, query, ticketNumber, userID).Scan(
		&t.ID,
		&t.TicketNumber,
		&t.UserID,
		&t.Category,
		&t.Status,
		&t.CreatedAt,
		&t.ClosedAt,
		&t.ClosedBy,
		&t.ClosingReason,
		&t.Messages,
		&t.Details,
		&t.ClaimedBy,
		&t.SavedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transcriptRepository) Search(ctx context.Context, filter domain.TranscriptFilter) ([]domain.Transcript, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.TicketNumber != "" {
		args = append(args, filter.TicketNumber)
		clauses = append(clauses, fmt.Sprintf("ticket_number=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}

	query := fmt.Sprintf(`SELECT %s FROM transcripts WHERE %s ORDER BY closed_at DESC LIMIT %d`,
		transcriptSummaryColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTranscriptSummaries(rows)
}

func (r *transcriptRepository) UserStats(ctx context.Context, userID string) (*domain.UserTranscriptStats, error) {
	stats := &domain.UserTranscriptStats{UserID: userID}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcripts WHERE user_id=$1`, userID).Scan(&stats.TotalTickets); err != nil {
		return nil, err
	}

	err := r.pool.QueryRow(ctx,
		`SELECT transcript_count, last_ticket_date, member_since FROM transcript_users WHERE user_id=$1`, userID,
	).Scan(&stats.TranscriptCount, &stats.LastTicketDate, &stats.MemberSince)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *transcriptRepository) Stats(ctx context.Context, since time.Time) (*domain.TranscriptStats, error) {
	stats := &domain.TranscriptStats{}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&stats.TotalTranscripts); err != nil {
		return nil, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcript_users`).Scan(&stats.TotalUsers); err != nil {
		return nil, err
	}
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transcripts WHERE closed_at >= $1`, since,
	).Scan(&stats.RecentActivity); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM transcripts GROUP BY category ORDER BY COUNT(*) DESC, category ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cc domain.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, err
		}
		stats.Categories = append(stats.Categories, cc)
	}
	return stats, rows.Err()
}

func (r *transcriptRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanTranscriptSummaries(rows pgx.Rows) ([]domain.Transcript, error) {
	var result []domain.Transcript
	for rows.Next() {
		var t domain.Transcript
		if err := rows.Scan(
			&t.ID,
			&t.TicketNumber,
			&t.UserID,
			&t.Category,
			&t.Status,
			&t.CreatedAt,
			&t.ClosedAt,
			&t.ClosingReason,
		); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
