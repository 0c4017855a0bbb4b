package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/repository"
)

// TranscriptRepository is an in-process transcript document store.
type TranscriptRepository struct {
	mu          sync.Mutex
	transcripts []domain.Transcript
	users       map[string]*domain.UserTranscriptStats
}

var _ repository.TranscriptRepository = (*TranscriptRepository)(nil)

func NewTranscriptRepository() *TranscriptRepository {
	return &TranscriptRepository{users: make(map[string]*domain.UserTranscriptStats)}
}

func (r *TranscriptRepository) Save(_ context.Context, t *domain.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	cp.Messages = append([]domain.TranscriptMessage(nil), t.Messages...)
	r.transcripts = append(r.transcripts, cp)

	user, ok := r.users[t.UserID]
	if !ok {
		user = &domain.UserTranscriptStats{UserID: t.UserID, MemberSince: t.SavedAt}
		r.users[t.UserID] = user
	}
	user.TranscriptCount++
	saved := t.SavedAt
	user.LastTicketDate = &saved
	return nil
}

func (r *TranscriptRepository) ListByUser(_ context.Context, userID string) ([]domain.Transcript, error) {
	return r.find(func(t domain.Transcript) bool { return t.UserID == userID }, 0), nil
}

func (r *TranscriptRepository) Get(_ context.Context, ticketNumber, userID string) (*domain.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transcripts) - 1; i >= 0; i-- {
		t := r.transcripts[i]
		if t.TicketNumber == ticketNumber && t.UserID == userID {
			return &t, nil
		}
	}
	return nil, repository.ErrTranscriptNotFound
}

func (r *TranscriptRepository) Search(_ context.Context, filter domain.TranscriptFilter) ([]domain.Transcript, error) {
	limit := filter.Limit
	if limit <= 0 || limit > repository.MaxSearchResults {
		limit = repository.MaxSearchResults
	}
	return r.find(func(t domain.Transcript) bool {
		return (filter.UserID == "" || t.UserID == filter.UserID) &&
			(filter.Category == "" || t.Category == filter.Category) &&
			(filter.TicketNumber == "" || t.TicketNumber == filter.TicketNumber)
	}, limit), nil
}

func (r *TranscriptRepository) UserStats(_ context.Context, userID string) (*domain.UserTranscriptStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.UserTranscriptStats{UserID: userID}
	for _, t := range r.transcripts {
		if t.UserID == userID {
			stats.TotalTickets++
		}
	}
	if user, ok := r.users[userID]; ok {
		stats.TranscriptCount = user.TranscriptCount
		stats.LastTicketDate = user.LastTicketDate
		stats.MemberSince = user.MemberSince
	}
	return stats, nil
}

func (r *TranscriptRepository) Stats(_ context.Context, since time.Time) (*domain.TranscriptStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.TranscriptStats{
		TotalTranscripts: len(r.transcripts),
		TotalUsers:       len(r.users),
	}
	counts := make(map[string]int)
	for _, t := range r.transcripts {
		counts[t.Category]++
		if !t.ClosedAt.Before(since) {
			stats.RecentActivity++
		}
	}
	for category, count := range counts {
		stats.Categories = append(stats.Categories, domain.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		a, b := stats.Categories[i], stats.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return stats, nil
}

func (r *TranscriptRepository) Ping(context.Context) error { return nil }

// find returns summaries newest closed first; limit 0 means all.
func (r *TranscriptRepository) find(match func(domain.Transcript) bool, limit int) []domain.Transcript {
	r.mu.Lock()
	var result []domain.Transcript
	for _, t := range r.transcripts {
		if match(t) {
			t.Messages = nil
			result = append(result, t)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool { return result[i].ClosedAt.After(result[j].ClosedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
