package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/repository"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// RecentActivityWindow bounds the "recent_activity" counter of the store
// statistics.
const RecentActivityWindow = 30 * 24 * time.Hour

// TranscriptService persists and queries closed-ticket transcripts.
type TranscriptService struct {
	repo   repository.TranscriptRepository
	clock  clock.Clock
	logger *zap.Logger
}

// TranscriptDependencies wires TranscriptService.
type TranscriptDependencies struct {
	Repo   repository.TranscriptRepository
	Clock  clock.Clock
	Logger *zap.Logger
}

// NewTranscriptService constructs the service.
func NewTranscriptService(deps TranscriptDependencies) *TranscriptService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TranscriptService{repo: deps.Repo, clock: deps.Clock, logger: deps.Logger}
}

// Save validates t, fills the defaults of absent optional fields and
// stores it. A nil Messages slice means the field was not sent.
func (s *TranscriptService) Save(ctx context.Context, t domain.Transcript) (*domain.Transcript, error) {
	required := []struct {
		field   string
		missing bool
	}{
		{"ticket_number", strings.TrimSpace(t.TicketNumber) == ""},
		{"user_id", strings.TrimSpace(t.UserID) == ""},
		{"category", strings.TrimSpace(t.Category) == ""},
		{"messages", t.Messages == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, ErrTranscriptFieldMissing.WithDetails(map[string]any{"field": r.field})
		}
	}

	now := s.clock.Now()
	t.ID = uuid.NewString()
	t.SavedAt = now
	if t.Status == "" {
		t.Status = "Closed"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.ClosedAt.IsZero() {
		t.ClosedAt = now
	}
	if t.ClosedBy == "" {
		t.ClosedBy = "Unknown"
	}
	if t.ClosingReason == "" {
		t.ClosingReason = "No reason provided"
	}
	if t.ClaimedBy == "" {
		t.ClaimedBy = domain.Unclaimed
	}

	if err := s.repo.Save(ctx, &t); err != nil {
		s.logger.Error("save transcript failed", zap.String("ticket_number", t.TicketNumber), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("transcript saved",
		zap.String("ticket_number", t.TicketNumber),
		zap.String("user_id", t.UserID),
		zap.Int("messages", len(t.Messages)))
	return &t, nil
}

// ListByUser returns the user's transcript summaries, newest closed first.
func (s *TranscriptService) ListByUser(ctx context.Context, userID string) ([]domain.Transcript, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one transcript with its messages. The user ID must match
// the owner.
func (s *TranscriptService) Get(ctx context.Context, ticketNumber, userID string) (*domain.Transcript, error) {
	return s.repo.Get(ctx, ticketNumber, userID)
}

func (s *TranscriptService) Search(ctx context.Context, filter domain.TranscriptFilter) ([]domain.Transcript, error) {
	if filter.Limit <= 0 || filter.Limit > repository.MaxSearchResults {
		filter.Limit = repository.MaxSearchResults
	}
	return s.repo.Search(ctx, filter)
}

// UserStats reports a user's activity. Unknown users get zero counts and
// a member-since of now.
func (s *TranscriptService) UserStats(ctx context.Context, userID string) (*domain.UserTranscriptStats, error) {
	stats, err := s.repo.UserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats.MemberSince.IsZero() {
		stats.MemberSince = s.clock.Now()
	}
	return stats, nil
}

func (s *TranscriptService) Stats(ctx context.Context) (*domain.TranscriptStats, error) {
	return s.repo.Stats(ctx, s.clock.Now().Add(-RecentActivityWindow))
}

// Ping checks the backing store.
func (s *TranscriptService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
