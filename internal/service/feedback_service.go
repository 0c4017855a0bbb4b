package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/repository"
)

// ClosureConfirmer finishes a ticket once its feedback arrived.
type ClosureConfirmer interface {
	ConfirmClosure(ctx context.Context, number string) error
}

// FeedbackService collects post-closure ratings from ticket creators.
type FeedbackService struct {
	feedback   repository.FeedbackRepository
	windows    repository.FeedbackWindowRepository
	tickets    repository.TicketRepository
	platform   platform.Platform
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	confirmer  ClosureConfirmer
	locks      *keyedMutex
}

// FeedbackDependencies bundles collaborators for the feedback service.
type FeedbackDependencies struct {
	FeedbackRepo repository.FeedbackRepository
	WindowRepo   repository.FeedbackWindowRepository
	TicketRepo   repository.TicketRepository
	Platform     platform.Platform
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// SubmitFeedbackInput is the content of the feedback form.
type SubmitFeedbackInput struct {
	TicketNumber string
	UserID       string
	Rating       int
	Feedback     string
	Suggestions  string
}

// NewFeedbackService constructs the service.
func NewFeedbackService(deps FeedbackDependencies) *FeedbackService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &FeedbackService{
		feedback:   deps.FeedbackRepo,
		windows:    deps.WindowRepo,
		tickets:    deps.TicketRepo,
		platform:   deps.Platform,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
		metrics:    deps.Metrics,
		locks:      newKeyedMutex(),
	}
}

// SetClosureConfirmer wires the ticket service after construction; the
// two services reference each other.
func (s *FeedbackService) SetClosureConfirmer(c ClosureConfirmer) {
	s.confirmer = c
}

// Request opens a feedback window for the ticket creator and sends them
// the rating prompt. An undeliverable DM leaves the window open.
func (s *FeedbackService) Request(ctx context.Context, ticketNumber, userID, closedBy string, expiry time.Duration) error {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	window := domain.FeedbackWindow{
		TicketNumber: ticketNumber,
		UserID:       userID,
		ClosedBy:     closedBy,
		Deadline:     s.clock.Now().Add(expiry),
	}
	if err := s.windows.Open(ctx, window); err != nil {
		return err
	}

	hours := int(expiry / time.Hour)
	if hours < 1 {
		hours = 1
	}
	if s.platform != nil {
		if _, err := s.platform.SendDirectMessage(ctx, userID, feedbackPrompt(ticketNumber, userID, closedBy, hours)); err != nil {
			s.logger.Warn("feedback prompt not delivered",
				zap.String("ticket_number", ticketNumber),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Submit stores the creator's rating. Only the first submission per
// ticket is accepted, and only before the window deadline.
func (s *FeedbackService) Submit(ctx context.Context, input SubmitFeedbackInput) (*domain.Feedback, error) {
	if input.Rating < domain.MinRating || input.Rating > domain.MaxRating {
		return nil, ErrInvalidRating
	}
	text := strings.TrimSpace(input.Feedback)
	if text == "" {
		return nil, ErrFeedbackRequired
	}

	unlock := s.locks.Lock(input.TicketNumber)
	defer unlock()

	ticket, err := s.tickets.Get(ctx, input.TicketNumber)
	if err != nil {
		return nil, err
	}
	if ticket.CreatorID != input.UserID {
		return nil, ErrNotTicketCreator
	}

	existing, err := s.feedback.Get(ctx, input.TicketNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadySubmitted
	}

	window, err := s.windows.Get(ctx, input.TicketNumber)
	if errors.Is(err, repository.ErrWindowNotFound) {
		return nil, ErrFeedbackWindowClosed
	}
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if window.Expired(now) {
		return nil, ErrFeedbackWindowClosed.WithDetails(map[string]any{"deadline": window.Deadline})
	}

	fb := &domain.Feedback{
		TicketNumber: input.TicketNumber,
		UserID:       input.UserID,
		Rating:       input.Rating,
		Feedback:     text,
		Suggestions:  strings.TrimSpace(input.Suggestions),
		CreatedAt:    now,
	}
	if err := s.feedback.CreateOnce(ctx, fb); err != nil {
		return nil, err
	}
	if err := s.windows.Delete(ctx, input.TicketNumber); err != nil {
		s.logger.Warn("feedback window not cleared", zap.String("ticket_number", input.TicketNumber), zap.Error(err))
	}

	s.metrics.RecordFeedback(fb.Rating)
	publish(ctx, s.dispatcher, s.clock, events.Event{
		Type:         events.EventFeedbackSubmitted,
		TicketNumber: fb.TicketNumber,
		Actor:        events.Actor{ID: fb.UserID},
		Payload: events.FeedbackSubmittedPayload{
			UserID:      fb.UserID,
			Rating:      fb.Rating,
			Feedback:    fb.Feedback,
			Suggestions: fb.Suggestions,
			ClosedBy:    window.ClosedBy,
		},
	})
	s.logger.Info("feedback submitted",
		zap.String("ticket_number", fb.TicketNumber),
		zap.Int("rating", fb.Rating),
	)

	if s.confirmer != nil {
		if err := s.confirmer.ConfirmClosure(ctx, fb.TicketNumber); err != nil {
			s.logger.Warn("closure confirmation failed", zap.String("ticket_number", fb.TicketNumber), zap.Error(err))
		}
	}
	return fb, nil
}

// Get returns the feedback recorded for a ticket, or nil.
func (s *FeedbackService) Get(ctx context.Context, ticketNumber string) (*domain.Feedback, error) {
	return s.feedback.Get(ctx, ticketNumber)
}

// Window returns the open feedback window for a ticket.
func (s *FeedbackService) Window(ctx context.Context, ticketNumber string) (*domain.FeedbackWindow, error) {
	return s.windows.Get(ctx, ticketNumber)
}
