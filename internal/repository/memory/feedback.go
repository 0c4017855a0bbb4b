package memory

import (
	"context"
	"sync"
	"time"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository"
)

// FeedbackRepository stores feedback records by ticket number.
type FeedbackRepository struct {
	mu      sync.Mutex
	records map[string]domain.Feedback
	file    fileStore
}

var _ repository.FeedbackRepository = (*FeedbackRepository)(nil)

func NewFeedbackRepository() *FeedbackRepository {
	return &FeedbackRepository{records: make(map[string]domain.Feedback)}
}

// NewFileFeedbackRepository loads records from table and writes new ones
// back to it.
func NewFileFeedbackRepository(table *persistence.JSONTable) (*FeedbackRepository, error) {
	r := NewFeedbackRepository()
	r.file = fileStore{table: table}
	if err := r.file.load(&r.records); err != nil {
		return nil, err
	}
	if r.records == nil {
		r.records = make(map[string]domain.Feedback)
	}
	return r, nil
}

func (r *FeedbackRepository) CreateOnce(_ context.Context, fb *domain.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[fb.TicketNumber]; exists {
		return repository.ErrFeedbackExists
	}
	r.records[fb.TicketNumber] = *fb
	if err := r.file.save(r.records); err != nil {
		delete(r.records, fb.TicketNumber)
		return err
	}
	return nil
}

func (r *FeedbackRepository) Get(_ context.Context, ticketNumber string) (*domain.Feedback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fb, ok := r.records[ticketNumber]
	if !ok {
		return nil, nil
	}
	return &fb, nil
}

// FeedbackWindowRepository keeps open windows in memory.
type FeedbackWindowRepository struct {
	mu      sync.Mutex
	windows map[string]domain.FeedbackWindow
}

var _ repository.FeedbackWindowRepository = (*FeedbackWindowRepository)(nil)

func NewFeedbackWindowRepository() *FeedbackWindowRepository {
	return &FeedbackWindowRepository{windows: make(map[string]domain.FeedbackWindow)}
}

func (r *FeedbackWindowRepository) Open(_ context.Context, window domain.FeedbackWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[window.TicketNumber] = window
	return nil
}

func (r *FeedbackWindowRepository) Get(_ context.Context, ticketNumber string) (*domain.FeedbackWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[ticketNumber]
	if !ok {
		return nil, repository.ErrWindowNotFound
	}
	return &w, nil
}

func (r *FeedbackWindowRepository) Delete(_ context.Context, ticketNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, ticketNumber)
	return nil
}

// HelpCallRepository remembers the last help call per ticket.
type HelpCallRepository struct {
	mu    sync.Mutex
	calls map[string]time.Time
}

var _ repository.HelpCallRepository = (*HelpCallRepository)(nil)

func NewHelpCallRepository() *HelpCallRepository {
	return &HelpCallRepository{calls: make(map[string]time.Time)}
}

func (r *HelpCallRepository) LastCall(_ context.Context, ticketNumber string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.calls[ticketNumber]
	return at, ok, nil
}

func (r *HelpCallRepository) RecordCall(_ context.Context, ticketNumber string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[ticketNumber] = at
	return nil
}
