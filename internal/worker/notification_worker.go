package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/service"
)

// Background groups the bot's out-of-band work: event notifications and
// delayed channel deletion.
type Background struct {
	notifications *service.NotificationService
	reaper        *ChannelReaper
	logger        *zap.Logger
}

// NewBackground bundles the workers. Either may be nil.
func NewBackground(notifications *service.NotificationService, reaper *ChannelReaper, logger *zap.Logger) *Background {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Background{notifications: notifications, reaper: reaper, logger: logger}
}

// Start registers notification handlers.
func (b *Background) Start() {
	if b.notifications == nil {
		return
	}
	b.notifications.RegisterHandlers()
	b.logger.Info("notification handlers registered")
}

// Stop drains queued channel deletions.
func (b *Background) Stop(ctx context.Context) error {
	if b.reaper == nil {
		return nil
	}
	if n := b.reaper.Pending(); n > 0 {
		b.logger.Info("cancelling queued channel deletions", zap.Int("pending", n))
	}
	return b.reaper.Shutdown(ctx)
}
