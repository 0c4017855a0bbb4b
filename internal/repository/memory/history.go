package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository"
)

// TicketHistoryRepository appends audit entries in arrival order.
type TicketHistoryRepository struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
	table   *persistence.JSONTable
}

var _ repository.TicketHistoryRepository = (*TicketHistoryRepository)(nil)

func NewTicketHistoryRepository() *TicketHistoryRepository {
	return &TicketHistoryRepository{}
}

// NewFileTicketHistoryRepository appends entries to table, one list per
// ticket number, after loading what it already holds.
func NewFileTicketHistoryRepository(table *persistence.JSONTable) (*TicketHistoryRepository, error) {
	r := &TicketHistoryRepository{table: table}
	keys, err := table.Keys()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		docs, err := table.Get(key)
		if err != nil {
			return nil, err
		}
		for _, raw := range docs {
			var entry domain.TicketHistory
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("decode history for ticket %s: %w", key, err)
			}
			r.entries = append(r.entries, entry)
		}
	}
	return r, nil
}

func (r *TicketHistoryRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.table != nil {
		if err := r.table.Append(history.TicketNumber, history); err != nil {
			return err
		}
	}
	r.entries = append(r.entries, *history)
	return nil
}

func (r *TicketHistoryRepository) ListByTicket(_ context.Context, ticketNumber string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, e := range r.entries {
		if e.TicketNumber == ticketNumber {
			result = append(result, e)
		}
	}
	return result, nil
}
