// Package memory provides mutex-guarded in-process implementations of the
// repository interfaces. Without a database the bot backs them with JSON
// files so state survives restarts; tests use them purely in memory.
package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// TicketRepository keeps tickets in a map keyed by number.
type TicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	last    int64
	file    fileStore
}

type ticketSnapshot struct {
	Last    int64           `json:"last_ticket_number"`
	Tickets []domain.Ticket `json:"tickets"`
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository builds an empty store.
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[string]*domain.Ticket)}
}

// NewFileTicketRepository loads tickets from table and writes every change
// back to it.
func NewFileTicketRepository(table *persistence.JSONTable) (*TicketRepository, error) {
	r := NewTicketRepository()
	r.file = fileStore{table: table}
	var snap ticketSnapshot
	if err := r.file.load(&snap); err != nil {
		return nil, err
	}
	r.restoreLocked(snap)
	return r, nil
}

func (r *TicketRepository) snapshotLocked() ticketSnapshot {
	snap := ticketSnapshot{Last: r.last, Tickets: make([]domain.Ticket, 0, len(r.tickets))}
	for _, t := range r.tickets {
		snap.Tickets = append(snap.Tickets, *t)
	}
	sort.Slice(snap.Tickets, func(i, j int) bool { return numberLess(snap.Tickets[i].Number, snap.Tickets[j].Number) })
	return snap
}

// beginLocked captures the state a failed commit reverts to.
func (r *TicketRepository) beginLocked() ticketSnapshot {
	if !r.file.enabled() {
		return ticketSnapshot{}
	}
	return r.snapshotLocked()
}

func (r *TicketRepository) restoreLocked(snap ticketSnapshot) {
	r.last = snap.Last
	r.tickets = make(map[string]*domain.Ticket, len(snap.Tickets))
	for i := range snap.Tickets {
		t := snap.Tickets[i]
		r.tickets[t.Number] = &t
	}
}

// commitLocked persists the current state, reverting to before on failure.
func (r *TicketRepository) commitLocked(before ticketSnapshot) error {
	if !r.file.enabled() {
		return nil
	}
	if err := r.file.save(r.snapshotLocked()); err != nil {
		r.restoreLocked(before)
		return err
	}
	return nil
}

// NextTicketNumber returns a number above every issued or stored one.
func (r *TicketRepository) NextTicketNumber(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.last
	for number := range r.tickets {
		if n, err := strconv.ParseInt(number, 10, 64); err == nil && n > next {
			next = n
		}
	}
	before := r.beginLocked()
	next++
	r.last = next
	if err := r.commitLocked(before); err != nil {
		return "", err
	}
	return strconv.FormatInt(next, 10), nil
}

func (r *TicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	if ticket.Number == "" {
		return apperrors.NewValidationError("ticket number required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.Number]; exists {
		return apperrors.NewConflict("ticket number already used", map[string]any{"number": ticket.Number})
	}
	if ticket.IsOpen() {
		for _, t := range r.tickets {
			if t.CreatorID == ticket.CreatorID && t.IsOpen() {
				return repository.ErrOpenTicketExists
			}
		}
	}
	before := r.beginLocked()
	cp := *ticket
	r.tickets[ticket.Number] = &cp
	return r.commitLocked(before)
}

func (r *TicketRepository) Get(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[number]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (r *TicketRepository) HasOpenTicket(ctx context.Context, creatorID string) (bool, error) {
	_, err := r.OpenTicket(ctx, creatorID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *TicketRepository) OpenTicket(_ context.Context, creatorID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *domain.Ticket
	for _, t := range r.tickets {
		if t.CreatorID != creatorID || !t.IsOpen() {
			continue
		}
		if found == nil || numberLess(found.Number, t.Number) {
			found = t
		}
	}
	if found == nil {
		return nil, repository.ErrTicketNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *TicketRepository) OpenTicketChannel(ctx context.Context, creatorID string) (string, bool, error) {
	ticket, err := r.OpenTicket(ctx, creatorID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ticket.ChannelID, ticket.ChannelID != "", nil
}

func (r *TicketRepository) SetClaim(_ context.Context, number, staffID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[number]
	if !ok {
		return repository.ErrTicketNotFound
	}
	before := r.beginLocked()
	ticket.ClaimedBy = staffID
	return r.commitLocked(before)
}

func (r *TicketRepository) GetClaim(_ context.Context, number string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[number]
	if !ok {
		return "", repository.ErrTicketNotFound
	}
	return ticket.Claim(), nil
}

func (r *TicketRepository) SetPriorityOnce(_ context.Context, number string, p domain.TicketPriority) (bool, domain.TicketPriority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[number]
	if !ok {
		return false, "", repository.ErrTicketNotFound
	}
	if ticket.Priority != "" {
		return false, ticket.Priority, nil
	}
	before := r.beginLocked()
	ticket.Priority = p
	if err := r.commitLocked(before); err != nil {
		return false, "", err
	}
	return true, p, nil
}

func (r *TicketRepository) Close(_ context.Context, number string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[number]
	if !ok {
		return repository.ErrTicketNotFound
	}
	if !ticket.IsOpen() {
		return repository.ErrTicketAlreadyClosed
	}
	before := r.beginLocked()
	ticket.Status = domain.TicketStatusClosed
	closedAt := at
	ticket.ClosedAt = &closedAt
	return r.commitLocked(before)
}

func (r *TicketRepository) ListByCreator(_ context.Context, creatorID string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.CreatorID == creatorID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return numberLess(result[j].Number, result[i].Number) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func numberLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return na < nb
}
