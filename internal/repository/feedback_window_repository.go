package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
)

// FeedbackWindowRepository tracks open feedback invitations. Expiry is
// judged by the caller against Deadline; storage TTLs only reclaim space.
type FeedbackWindowRepository interface {
	Open(ctx context.Context, window domain.FeedbackWindow) error
	Get(ctx context.Context, ticketNumber string) (*domain.FeedbackWindow, error)
	Delete(ctx context.Context, ticketNumber string) error
}

type redisWindowRepository struct {
	store     *persistence.Redis
	retention time.Duration
}

// NewRedisFeedbackWindowRepository keeps windows as JSON strings. Keys
// outlive their deadline by retention so late submissions still find the
// window and get a precise "expired" answer.
func NewRedisFeedbackWindowRepository(store *persistence.Redis, retention time.Duration) FeedbackWindowRepository {
	return &redisWindowRepository{store: store, retention: retention}
}

type windowDoc struct {
	TicketNumber string    `json:"ticket_number"`
	UserID       string    `json:"user_id"`
	ClosedBy     string    `json:"closed_by"`
	Deadline     time.Time `json:"deadline"`
}

func (r *redisWindowRepository) key(ticketNumber string) string {
	return r.store.Key("feedback_window", ticketNumber)
}

func (r *redisWindowRepository) Open(ctx context.Context, window domain.FeedbackWindow) error {
	raw, err := json.Marshal(windowDoc(window))
	if err != nil {
		return err
	}
	ttl := time.Until(window.Deadline) + r.retention
	if ttl <= 0 {
		ttl = r.retention
	}
	return r.store.Client.Set(ctx, r.key(window.TicketNumber), raw, ttl).Err()
}

func (r *redisWindowRepository) Get(ctx context.Context, ticketNumber string) (*domain.FeedbackWindow, error) {
	raw, err := r.store.Client.Get(ctx, r.key(ticketNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrWindowNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc windowDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	window := domain.FeedbackWindow(doc)
	return &window, nil
}

func (r *redisWindowRepository) Delete(ctx context.Context, ticketNumber string) error {
	return r.store.Client.Del(ctx, r.key(ticketNumber)).Err()
}
