package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrydesk/carry-desk/internal/domain"
)

// CarryGuard inspects a pending carry inside the resolving transaction.
// Returning an error aborts the resolution and leaves the entry in place.
type CarryGuard func(*domain.PendingCarry) error

// CarryRepository holds the pending-carry queue and the points ledger.
// Both live behind one interface because approval must remove the entry
// and credit the ledger in a single atomic step.
type CarryRepository interface {
	CreatePending(ctx context.Context, carry *domain.PendingCarry) error
	GetPending(ctx context.Context, id string) (*domain.PendingCarry, error)
	ListPending(ctx context.Context, limit int) ([]domain.PendingCarry, error)
	// ResolvePending removes the entry once guard passes. With payout set
	// the carry's points are credited to its staff member and the new
	// total is returned. A missing entry yields ErrCarryNotFound.
	ResolvePending(ctx context.Context, id string, guard CarryGuard, payout bool) (*domain.PendingCarry, int, error)

	AddPoints(ctx context.Context, staffID string, amount int) (int, error)
	// RemovePoints deducts at most the current balance and deletes the
	// entry when it reaches zero.
	RemovePoints(ctx context.Context, staffID string, amount int) (removed int, newTotal int, err error)
	Points(ctx context.Context, staffID string) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LedgerEntry, error)
}

type carryRepository struct {
	pool *pgxpool.Pool
}

// NewCarryRepository instantiates repository.
func NewCarryRepository(pool *pgxpool.Pool) CarryRepository {
	return &carryRepository{pool: pool}
}

const pendingColumns = `id, staff_id, staff_name, requester_id, requester_name, user_carried_id,
        runs, carry_type, floor_or_tier, grade, points, created_at`

func (r *carryRepository) CreatePending(ctx context.Context, carry *domain.PendingCarry) error {
	const query = `
        INSERT INTO pending_carries (id, staff_id, staff_name, requester_id, requester_name, user_carried_id,
            runs, carry_type, floor_or_tier, grade, points, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.pool.Exec(ctx, query,
		carry.ID,
		carry.StaffID,
		carry.StaffName,
		carry.RequesterID,
		carry.RequesterName,
		carry.UserCarriedID,
		carry.Runs,
		carry.CarryType,
		carry.FloorOrTier,
		carry.Grade,
		carry.Points,
		carry.CreatedAt,
	)
	return err
}

func (r *carryRepository) GetPending(ctx context.Context, id string) (*domain.PendingCarry, error) {
	carry, err := scanPending(r.pool.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_carries WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCarryNotFound
	}
	return carry, err
}

func (r *carryRepository) ListPending(ctx context.Context, limit int) ([]domain.PendingCarry, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+pendingColumns+` FROM pending_carries ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PendingCarry
	for rows.Next() {
		carry, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *carry)
	}
	return result, rows.Err()
}

func (r *carryRepository) ResolvePending(ctx context.Context, id string, guard CarryGuard, payout bool) (*domain.PendingCarry, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE makes a concurrent resolver wait, then see no row.
	carry, err := scanPending(tx.QueryRow(ctx,
		`SELECT `+pendingColumns+` FROM pending_carries WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrCarryNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	if guard != nil {
		if err := guard(carry); err != nil {
			return nil, 0, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_carries WHERE id=$1`, id); err != nil {
		return nil, 0, err
	}

	total := 0
	if payout {
		if total, err = addPoints(ctx, tx, carry.StaffID, carry.Points); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return carry, total, nil
}

func (r *carryRepository) AddPoints(ctx context.Context, staffID string, amount int) (int, error) {
	return addPoints(ctx, r.pool, staffID, amount)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func addPoints(ctx context.Context, q queryRower, staffID string, amount int) (int, error) {
	const query = `
        INSERT INTO points_ledger (staff_id, points) VALUES ($1,$2)
        ON CONFLICT (staff_id) DO UPDATE SET points = points_ledger.points + EXCLUDED.points, updated_at = NOW()
        RETURNING points`
	var total int
	err := q.QueryRow(ctx, query, staffID, amount).Scan(&total)
	return total, err
}

func (r *carryRepository) RemovePoints(ctx context.Context, staffID string, amount int) (int, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx, `SELECT points FROM points_ledger WHERE staff_id=$1 FOR UPDATE`, staffID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	removed := min(amount, current)
	remaining := current - removed
	if remaining == 0 {
		_, err = tx.Exec(ctx, `DELETE FROM points_ledger WHERE staff_id=$1`, staffID)
	} else {
		_, err = tx.Exec(ctx, `UPDATE points_ledger SET points=$2, updated_at=NOW() WHERE staff_id=$1`, staffID, remaining)
	}
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return removed, remaining, nil
}

func (r *carryRepository) Points(ctx context.Context, staffID string) (int, error) {
	var points int
	err := r.pool.QueryRow(ctx, `SELECT points FROM points_ledger WHERE staff_id=$1`, staffID).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return points, err
}

func (r *carryRepository) Leaderboard(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		`SELECT staff_id, points FROM points_ledger ORDER BY points DESC, seq ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.StaffID, &entry.Points); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanPending(row pgx.Row) (*domain.PendingCarry, error) {
	var carry domain.PendingCarry
	if err := row.Scan(
		&carry.ID,
		&carry.StaffID,
		&carry.StaffName,
		&carry.RequesterID,
		&carry.RequesterName,
		&carry.UserCarriedID,
		&carry.Runs,
		&carry.CarryType,
		&carry.FloorOrTier,
		&carry.Grade,
		&carry.Points,
		&carry.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &carry, nil
}
