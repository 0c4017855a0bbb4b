package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/platform"
)

const defaultDeleteGrace = 5 * time.Second

// ChannelReaper deletes closed ticket channels after a grace period so
// participants can read the closing message.
type ChannelReaper struct {
	platform platform.Platform
	clock    clock.Clock
	grace    time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]clock.Timer
	wg      sync.WaitGroup
}

// NewChannelReaper builds a reaper. A non-positive grace uses 5s.
func NewChannelReaper(p platform.Platform, clk clock.Clock, grace time.Duration, logger *zap.Logger) *ChannelReaper {
	if grace <= 0 {
		grace = defaultDeleteGrace
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelReaper{
		platform: p,
		clock:    clk,
		grace:    grace,
		logger:   logger,
		pending:  make(map[string]clock.Timer),
	}
}

// Schedule queues channelID for deletion. It returns false when the
// channel is already queued.
func (r *ChannelReaper) Schedule(channelID, ticketNumber string) bool {
	if channelID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[channelID]; ok {
		return false
	}
	r.wg.Add(1)
	r.pending[channelID] = r.clock.AfterFunc(r.grace, func() {
		defer r.wg.Done()
		r.reap(channelID, ticketNumber)
	})
	r.logger.Info("channel deletion scheduled",
		zap.String("channel_id", channelID),
		zap.String("ticket_number", ticketNumber),
		zap.Duration("grace", r.grace),
	)
	return true
}

// Pending reports channels waiting for deletion.
func (r *ChannelReaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Shutdown stops queued deletions that have not started and waits for
// running ones to finish or ctx to end.
func (r *ChannelReaper) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for id, timer := range r.pending {
		if timer.Stop() {
			r.wg.Done()
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ChannelReaper) reap(channelID, ticketNumber string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := r.platform.DeleteChannel(ctx, channelID)
	r.mu.Lock()
	delete(r.pending, channelID)
	r.mu.Unlock()

	switch {
	case err == nil:
		r.logger.Info("ticket channel deleted", zap.String("channel_id", channelID), zap.String("ticket_number", ticketNumber))
	case errors.Is(err, platform.ErrChannelNotFound):
		r.logger.Debug("ticket channel already gone", zap.String("channel_id", channelID))
	default:
		r.logger.Error("ticket channel deletion failed",
			zap.String("channel_id", channelID),
			zap.String("ticket_number", ticketNumber),
			zap.Error(err),
		)
	}
}
