package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository"
)

// CarryRepository guards the pending queue and the ledger with one
// mutex so resolution and payout happen as a single step.
type CarryRepository struct {
	mu      sync.Mutex
	pending map[string]domain.PendingCarry
	order   []string
	ledger  map[string]*ledgerRow
	seq     int64
	file    fileStore
}

type ledgerRow struct {
	points int
	seq    int64
}

type carrySnapshot struct {
	Pending []domain.PendingCarry `json:"pending_carries"`
	Ledger  []ledgerSnapshot      `json:"points"`
	Seq     int64                 `json:"seq"`
}

type ledgerSnapshot struct {
	StaffID string `json:"staff_id"`
	Points  int    `json:"points"`
	Seq     int64  `json:"seq"`
}

var _ repository.CarryRepository = (*CarryRepository)(nil)

// NewCarryRepository builds an empty queue and ledger.
func NewCarryRepository() *CarryRepository {
	return &CarryRepository{
		pending: make(map[string]domain.PendingCarry),
		ledger:  make(map[string]*ledgerRow),
	}
}

// NewFileCarryRepository loads the queue and ledger from table and writes
// every change back to it.
func NewFileCarryRepository(table *persistence.JSONTable) (*CarryRepository, error) {
	r := NewCarryRepository()
	r.file = fileStore{table: table}
	var snap carrySnapshot
	if err := r.file.load(&snap); err != nil {
		return nil, err
	}
	r.restoreLocked(snap)
	return r, nil
}

func (r *CarryRepository) snapshotLocked() carrySnapshot {
	snap := carrySnapshot{Seq: r.seq, Pending: make([]domain.PendingCarry, 0, len(r.order))}
	for _, id := range r.order {
		snap.Pending = append(snap.Pending, r.pending[id])
	}
	for staffID, row := range r.ledger {
		snap.Ledger = append(snap.Ledger, ledgerSnapshot{StaffID: staffID, Points: row.points, Seq: row.seq})
	}
	sort.Slice(snap.Ledger, func(i, j int) bool { return snap.Ledger[i].Seq < snap.Ledger[j].Seq })
	return snap
}

func (r *CarryRepository) beginLocked() carrySnapshot {
	if !r.file.enabled() {
		return carrySnapshot{}
	}
	return r.snapshotLocked()
}

func (r *CarryRepository) restoreLocked(snap carrySnapshot) {
	r.seq = snap.Seq
	r.order = r.order[:0]
	r.pending = make(map[string]domain.PendingCarry, len(snap.Pending))
	for _, carry := range snap.Pending {
		r.order = append(r.order, carry.ID)
		r.pending[carry.ID] = carry
	}
	r.ledger = make(map[string]*ledgerRow, len(snap.Ledger))
	for _, row := range snap.Ledger {
		r.ledger[row.StaffID] = &ledgerRow{points: row.Points, seq: row.Seq}
	}
}

func (r *CarryRepository) commitLocked(before carrySnapshot) error {
	if !r.file.enabled() {
		return nil
	}
	if err := r.file.save(r.snapshotLocked()); err != nil {
		r.restoreLocked(before)
		return err
	}
	return nil
}

func (r *CarryRepository) CreatePending(_ context.Context, carry *domain.PendingCarry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.beginLocked()
	if _, exists := r.pending[carry.ID]; !exists {
		r.order = append(r.order, carry.ID)
	}
	r.pending[carry.ID] = *carry
	return r.commitLocked(before)
}

func (r *CarryRepository) GetPending(_ context.Context, id string) (*domain.PendingCarry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	carry, ok := r.pending[id]
	if !ok {
		return nil, repository.ErrCarryNotFound
	}
	return &carry, nil
}

func (r *CarryRepository) ListPending(_ context.Context, limit int) ([]domain.PendingCarry, error) {
	if limit <= 0 {
		limit = 25
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PendingCarry
	for _, id := range r.order {
		if carry, ok := r.pending[id]; ok {
			result = append(result, carry)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (r *CarryRepository) ResolvePending(_ context.Context, id string, guard repository.CarryGuard, payout bool) (*domain.PendingCarry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	carry, ok := r.pending[id]
	if !ok {
		return nil, 0, repository.ErrCarryNotFound
	}
	if guard != nil {
		if err := guard(&carry); err != nil {
			return nil, 0, err
		}
	}
	before := r.beginLocked()
	delete(r.pending, id)
	r.dropOrder(id)

	total := 0
	if payout {
		total = r.addLocked(carry.StaffID, carry.Points)
	}
	if err := r.commitLocked(before); err != nil {
		return nil, 0, err
	}
	return &carry, total, nil
}

func (r *CarryRepository) AddPoints(_ context.Context, staffID string, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.beginLocked()
	total := r.addLocked(staffID, amount)
	if err := r.commitLocked(before); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *CarryRepository) RemovePoints(_ context.Context, staffID string, amount int) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.ledger[staffID]
	if !ok {
		return 0, 0, nil
	}
	before := r.beginLocked()
	removed := min(amount, row.points)
	row.points -= removed
	if row.points == 0 {
		delete(r.ledger, staffID)
	}
	if err := r.commitLocked(before); err != nil {
		return 0, 0, err
	}
	return removed, row.points, nil
}

func (r *CarryRepository) Points(_ context.Context, staffID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.ledger[staffID]; ok {
		return row.points, nil
	}
	return 0, nil
}

func (r *CarryRepository) Leaderboard(_ context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	r.mu.Lock()
	type ranked struct {
		entry domain.LedgerEntry
		seq   int64
	}
	rows := make([]ranked, 0, len(r.ledger))
	for staffID, row := range r.ledger {
		rows = append(rows, ranked{entry: domain.LedgerEntry{StaffID: staffID, Points: row.points}, seq: row.seq})
	}
	r.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Points != rows[j].entry.Points {
			return rows[i].entry.Points > rows[j].entry.Points
		}
		return rows[i].seq < rows[j].seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	result := make([]domain.LedgerEntry, len(rows))
	for i, row := range rows {
		result[i] = row.entry
	}
	return result, nil
}

func (r *CarryRepository) addLocked(staffID string, amount int) int {
	row, ok := r.ledger[staffID]
	if !ok {
		r.seq++
		row = &ledgerRow{seq: r.seq}
		r.ledger[staffID] = row
	}
	row.points += amount
	return row.points
}

func (r *CarryRepository) dropOrder(id string) {
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
