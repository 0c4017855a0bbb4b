package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carrydesk/carry-desk/internal/persistence"
)

// HelpCallRepository remembers when help was last requested per ticket.
type HelpCallRepository interface {
	LastCall(ctx context.Context, ticketNumber string) (time.Time, bool, error)
	RecordCall(ctx context.Context, ticketNumber string, at time.Time) error
}

type redisHelpCallRepository struct {
	store     *persistence.Redis
	retention time.Duration
}

// NewRedisHelpCallRepository stores the last call as unix nanoseconds.
func NewRedisHelpCallRepository(store *persistence.Redis, retention time.Duration) HelpCallRepository {
	return &redisHelpCallRepository{store: store, retention: retention}
}

func (r *redisHelpCallRepository) key(ticketNumber string) string {
	return r.store.Key("help_call", ticketNumber)
}

func (r *redisHelpCallRepository) LastCall(ctx context.Context, ticketNumber string) (time.Time, bool, error) {
	raw, err := r.store.Client.Get(ctx, r.key(ticketNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

func (r *redisHelpCallRepository) RecordCall(ctx context.Context, ticketNumber string, at time.Time) error {
	return r.store.Client.Set(ctx, r.key(ticketNumber), strconv.FormatInt(at.UnixNano(), 10), r.retention).Err()
}
