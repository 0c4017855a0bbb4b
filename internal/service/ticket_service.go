package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/transcript"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

const (
	reasonManualClose   = "Manual closure by staff"
	reasonFeedbackClose = "Closed after feedback"
	reasonStaleChannel  = "stale channel"
)

// TranscriptSink stores closed-ticket transcripts.
type TranscriptSink interface {
	Store(ctx context.Context, t domain.Transcript) transcript.Outcome
}

// FeedbackRequester opens a feedback window for a closed ticket.
type FeedbackRequester interface {
	Request(ctx context.Context, ticketNumber, userID, closedBy string, expiry time.Duration) error
}

// ChannelScheduler deletes a ticket channel after the grace delay.
// Scheduling the same channel twice is a no-op.
type ChannelScheduler interface {
	Schedule(channelID, ticketNumber string) bool
}

// TicketConfig tunes the ticket lifecycle.
type TicketConfig struct {
	ActiveCategories []domain.Category
	// AccessRoleIDs are granted read/write on every ticket channel.
	AccessRoleIDs  []string
	CarrierRoleID  string
	HelpCooldown   time.Duration
	FeedbackExpiry time.Duration
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	helpCalls  repository.HelpCallRepository
	platform   platform.Platform
	sink       TranscriptSink
	feedback   FeedbackRequester
	deleter    ChannelScheduler
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        TicketConfig

	creatorLocks *keyedMutex
	ticketLocks  *keyedMutex
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	HistoryRepo  repository.TicketHistoryRepository
	HelpCallRepo repository.HelpCallRepository
	Platform     platform.Platform
	Sink         TranscriptSink
	Feedback     FeedbackRequester
	Deleter      ChannelScheduler
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Config       TicketConfig
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Category string
	Details  string
}

// PriorityResult reports the outcome of a priority attempt.
type PriorityResult struct {
	Applied bool
	Current domain.TicketPriority
}

// CloseInput describes a closure request. System closes skip the
// capability check and the feedback request.
type CloseInput struct {
	Number string
	Actor  domain.Actor
	Reason string
	System bool
}

// CloseResult summarizes a completed closure.
type CloseResult struct {
	Ticket       *domain.Ticket
	Transcript   transcript.Outcome
	MessageCount int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	cfg := deps.Config
	if len(cfg.ActiveCategories) == 0 {
		cfg.ActiveCategories = []domain.Category{domain.CategoryDungeonCarry, domain.CategorySlayerCarry}
	}
	if cfg.HelpCooldown <= 0 {
		cfg.HelpCooldown = 2 * time.Hour
	}
	if cfg.FeedbackExpiry <= 0 {
		cfg.FeedbackExpiry = 24 * time.Hour
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:      deps.TicketRepo,
		history:      deps.HistoryRepo,
		helpCalls:    deps.HelpCallRepo,
		platform:     deps.Platform,
		sink:         deps.Sink,
		feedback:     deps.Feedback,
		deleter:      deps.Deleter,
		dispatcher:   deps.Dispatcher,
		clock:        clk,
		logger:       logger,
		metrics:      deps.Metrics,
		cfg:          cfg,
		creatorLocks: newKeyedMutex(),
		ticketLocks:  newKeyedMutex(),
	}
}

// ActiveCategories lists the categories tickets may be opened in.
func (s *TicketService) ActiveCategories() []domain.Category {
	return append([]domain.Category(nil), s.cfg.ActiveCategories...)
}

// CreateTicket opens a ticket and its channel for actor. Either both the
// channel and the record exist afterwards or neither does.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	category, ok := s.activeCategory(input.Category)
	if !ok {
		return nil, ErrInactiveCategory.WithDetails(map[string]any{
			"category": input.Category,
			"valid":    s.cfg.ActiveCategories,
		})
	}

	unlock := s.creatorLocks.Lock(actor.ID)
	defer unlock()

	if err := s.ensureNoOpenTicket(ctx, actor.ID); err != nil {
		return nil, err
	}

	number, err := s.tickets.NextTicketNumber(ctx)
	if err != nil {
		return nil, err
	}

	channel, err := s.platform.CreateTicketChannel(ctx, platform.ChannelSpec{
		Name:         domain.ChannelName(number, ""),
		CategoryName: string(category),
		MemberIDs:    []string{actor.ID},
		RoleIDs:      s.cfg.AccessRoleIDs,
	})
	if err != nil {
		s.logger.Error("create ticket channel failed", zap.String("ticket_number", number), zap.Error(err))
		return nil, apperrors.NewCollaboratorError("could not create the ticket channel", err)
	}

	ticket := &domain.Ticket{
		Number:    number,
		CreatorID: actor.ID,
		ChannelID: channel.ID,
		Category:  category,
		Status:    domain.TicketStatusOpen,
		Details:   strings.TrimSpace(input.Details),
		CreatedAt: s.clock.Now(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if derr := s.platform.DeleteChannel(ctx, channel.ID); derr != nil && !errors.Is(derr, platform.ErrChannelNotFound) {
			s.logger.Error("rollback ticket channel failed",
				zap.String("ticket_number", number),
				zap.String("channel_id", channel.ID),
				zap.Error(derr))
		}
		if errors.Is(err, repository.ErrOpenTicketExists) {
			return nil, ErrDuplicateTicket
		}
		return nil, err
	}

	s.recordHistory(ctx, number, actor.ID, domain.ChangeTypeCreated, nil, map[string]any{
		"category":   category,
		"channel_id": channel.ID,
	})

	s.send(ctx, channel.ID, platform.Message{Content: mentionRole(s.cfg.CarrierRoleID)})
	s.send(ctx, channel.ID, welcomeMessage(ticket, actor))

	s.metrics.RecordTicketTransition("created")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketCreated,
		TicketNumber: number,
		Actor:        eventActor(actor),
		Payload: events.TicketCreatedPayload{
			CreatorID: actor.ID,
			ChannelID: channel.ID,
			Category:  category,
		},
	})
	s.logger.Info("ticket created",
		zap.String("ticket_number", number),
		zap.String("creator_id", actor.ID),
		zap.String("category", string(category)))
	return ticket, nil
}

// ensureNoOpenTicket rejects creators with a live open ticket. An open
// record whose channel is gone is closed as stale so creation can go on.
func (s *TicketService) ensureNoOpenTicket(ctx context.Context, creatorID string) error {
	has, err := s.tickets.HasOpenTicket(ctx, creatorID)
	if err != nil || !has {
		return err
	}
	open, err := s.tickets.OpenTicket(ctx, creatorID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	duplicate := ErrDuplicateTicket.WithDetails(map[string]any{
		"ticket_number": open.Number,
		"channel_id":    open.ChannelID,
	})
	exists, err := s.platform.ChannelExists(ctx, open.ChannelID)
	if err != nil {
		s.logger.Warn("could not verify existing ticket channel",
			zap.String("ticket_number", open.Number), zap.Error(err))
		return duplicate
	}
	if exists {
		return duplicate
	}

	s.logger.Warn("open ticket has no channel, closing as stale",
		zap.String("ticket_number", open.Number),
		zap.String("channel_id", open.ChannelID),
		zap.String("creator_id", creatorID))
	if err := s.tickets.Close(ctx, open.Number, s.clock.Now()); err != nil && !errors.Is(err, repository.ErrTicketAlreadyClosed) {
		return err
	}
	s.recordHistory(ctx, open.Number, domain.SystemActorID, domain.ChangeTypeStatus,
		map[string]any{"status": domain.TicketStatusOpen},
		map[string]any{"status": domain.TicketStatusClosed, "reason": reasonStaleChannel})
	s.metrics.RecordTicketTransition("stale_closed")
	return nil
}

// Get returns a ticket by number.
func (s *TicketService) Get(ctx context.Context, number string) (*domain.Ticket, error) {
	return s.tickets.Get(ctx, number)
}

// Claim assigns actor as the handler of a ticket.
func (s *TicketService) Claim(ctx context.Context, actor domain.Actor, number string) (*domain.Ticket, error) {
	if !actor.Can(domain.CapabilityStaff) {
		return nil, ErrPermissionDenied
	}
	unlock := s.ticketLocks.Lock(number)
	defer unlock()

	ticket, err := s.openTicket(ctx, number)
	if err != nil {
		return nil, err
	}
	if ticket.ClaimedBy == actor.ID {
		return ticket, nil
	}
	if ticket.ClaimedBy != "" {
		return nil, ErrAlreadyClaimed.WithDetails(map[string]any{"claimed_by": ticket.ClaimedBy})
	}

	if err := s.tickets.SetClaim(ctx, number, actor.ID); err != nil {
		return nil, err
	}
	ticket.ClaimedBy = actor.ID

	s.recordHistory(ctx, number, actor.ID, domain.ChangeTypeClaim,
		map[string]any{"claimed_by": domain.Unclaimed},
		map[string]any{"claimed_by": actor.ID})
	s.send(ctx, ticket.ChannelID, platform.Message{
		Content: fmt.Sprintf("🙋 This ticket has been claimed by %s.", mentionUser(actor.ID)),
	})
	s.metrics.RecordTicketTransition("claimed")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketClaimed,
		TicketNumber: number,
		Actor:        eventActor(actor),
		Payload:      events.TicketClaimPayload{ChannelID: ticket.ChannelID, StaffID: actor.ID},
	})
	return ticket, nil
}

// Unclaim releases a claim. Only the claimant or an admin may do so.
func (s *TicketService) Unclaim(ctx context.Context, actor domain.Actor, number string) (*domain.Ticket, error) {
	if !actor.Can(domain.CapabilityStaff) {
		return nil, ErrPermissionDenied
	}
	unlock := s.ticketLocks.Lock(number)
	defer unlock()

	ticket, err := s.openTicket(ctx, number)
	if err != nil {
		return nil, err
	}
	if ticket.ClaimedBy == "" {
		return nil, ErrNotClaimed
	}
	if ticket.ClaimedBy != actor.ID && !actor.Can(domain.CapabilityAdmin) {
		return nil, ErrPermissionDenied.WithDetails(map[string]any{"claimed_by": ticket.ClaimedBy})
	}

	previous := ticket.ClaimedBy
	if err := s.tickets.SetClaim(ctx, number, ""); err != nil {
		return nil, err
	}
	ticket.ClaimedBy = ""

	s.recordHistory(ctx, number, actor.ID, domain.ChangeTypeClaim,
		map[string]any{"claimed_by": previous},
		map[string]any{"claimed_by": domain.Unclaimed})
	s.send(ctx, ticket.ChannelID, platform.Message{
		Content: fmt.Sprintf("This ticket is no longer claimed by %s.", mentionUser(previous)),
	})
	s.metrics.RecordTicketTransition("unclaimed")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketUnclaimed,
		TicketNumber: number,
		Actor:        eventActor(actor),
		Payload:      events.TicketClaimPayload{ChannelID: ticket.ChannelID, StaffID: previous},
	})
	return ticket, nil
}

// GetClaim returns the claimant or domain.Unclaimed.
func (s *TicketService) GetClaim(ctx context.Context, number string) (string, error) {
	return s.tickets.GetClaim(ctx, number)
}

// SetPriority sets the ticket priority once. Later attempts report the
// stored value with Applied false and have no side effects.
func (s *TicketService) SetPriority(ctx context.Context, actor domain.Actor, number string, priority domain.TicketPriority) (PriorityResult, error) {
	if priority.Emoji() == "" {
		return PriorityResult{}, ErrInvalidPriority.WithDetails(map[string]any{"valid": domain.Priorities})
	}
	ticket, err := s.openTicket(ctx, number)
	if err != nil {
		return PriorityResult{}, err
	}

	applied, current, err := s.tickets.SetPriorityOnce(ctx, number, priority)
	if err != nil {
		return PriorityResult{}, err
	}
	if !applied {
		return PriorityResult{Applied: false, Current: current}, nil
	}

	s.recordHistory(ctx, number, actor.ID, domain.ChangeTypePriority, nil, map[string]any{"priority": priority})
	s.send(ctx, ticket.ChannelID, priorityMessage(priority, actor.ID))
	if err := s.platform.RenameChannel(ctx, ticket.ChannelID, domain.ChannelName(number, priority)); err != nil {
		s.logger.Warn("rename ticket channel failed",
			zap.String("ticket_number", number),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
	}
	s.metrics.RecordTicketTransition("priority_set")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketPrioritySet,
		TicketNumber: number,
		Actor:        eventActor(actor),
		Payload:      events.TicketPrioritySetPayload{ChannelID: ticket.ChannelID, Priority: priority},
	})
	return PriorityResult{Applied: true, Current: priority}, nil
}

// CloseTicket captures the transcript, marks the ticket closed, schedules
// channel deletion and asks the creator for feedback. An unreachable
// transcript API degrades to the local fallback and never blocks closure.
func (s *TicketService) CloseTicket(ctx context.Context, input CloseInput) (*CloseResult, error) {
	if !input.System && !input.Actor.Can(domain.CapabilityStaff) {
		return nil, ErrPermissionDenied
	}
	actor := input.Actor
	if input.System && actor.ID == "" {
		actor = domain.SystemActor
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = reasonManualClose
		if input.System {
			reason = reasonFeedbackClose
		}
	}

	unlock := s.ticketLocks.Lock(input.Number)
	defer unlock()

	ticket, err := s.tickets.Get(ctx, input.Number)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOpen() {
		return nil, repository.ErrTicketAlreadyClosed
	}

	messages, degraded := s.snapshot(ctx, ticket)
	closedAt := s.clock.Now()
	outcome := transcript.OutcomeDegraded
	if s.sink != nil {
		outcome = s.sink.Store(ctx, domain.Transcript{
			TicketNumber:  ticket.Number,
			UserID:        ticket.CreatorID,
			Category:      string(ticket.Category),
			Status:        "Closed",
			CreatedAt:     ticket.CreatedAt,
			ClosedAt:      closedAt,
			ClosedBy:      actor.DisplayName(),
			ClosingReason: reason,
			Messages:      messages,
			Details:       ticket.Details,
			ClaimedBy:     ticket.Claim(),
		})
	}

	if err := s.tickets.Close(ctx, ticket.Number, closedAt); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt

	s.recordHistory(ctx, ticket.Number, actor.ID, domain.ChangeTypeStatus,
		map[string]any{"status": domain.TicketStatusOpen},
		map[string]any{"status": domain.TicketStatusClosed, "reason": reason})
	s.send(ctx, ticket.ChannelID, closedMessage(actor, reason))

	if s.deleter != nil && ticket.ChannelID != "" {
		s.deleter.Schedule(ticket.ChannelID, ticket.Number)
	}

	if !input.System && s.feedback != nil {
		if err := s.feedback.Request(ctx, ticket.Number, ticket.CreatorID, actor.DisplayName(), s.cfg.FeedbackExpiry); err != nil {
			s.logger.Warn("feedback request failed", zap.String("ticket_number", ticket.Number), zap.Error(err))
		}
	}

	s.metrics.RecordTicketTransition("closed")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketClosed,
		TicketNumber: ticket.Number,
		Actor:        eventActor(actor),
		Payload: events.TicketClosedPayload{
			CreatorID:          ticket.CreatorID,
			ChannelID:          ticket.ChannelID,
			Reason:             reason,
			ClaimedBy:          ticket.Claim(),
			Category:           string(ticket.Category),
			TranscriptDegraded: degraded || outcome == transcript.OutcomeDegraded,
			MessageCount:       len(messages),
		},
	})
	s.logger.Info("ticket closed",
		zap.String("ticket_number", ticket.Number),
		zap.String("closed_by", actor.ID),
		zap.String("transcript", string(outcome)),
		zap.Int("message_count", len(messages)))
	return &CloseResult{Ticket: ticket, Transcript: outcome, MessageCount: len(messages)}, nil
}

// snapshot reads the channel history as transcript lines. Plain bot
// messages are skipped. A failed read yields an empty transcript.
func (s *TicketService) snapshot(ctx context.Context, ticket *domain.Ticket) ([]domain.TranscriptMessage, bool) {
	history, err := s.platform.FetchHistory(ctx, ticket.ChannelID)
	if err != nil {
		s.logger.Warn("fetch channel history failed, closing with empty transcript",
			zap.String("ticket_number", ticket.Number),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
		return []domain.TranscriptMessage{}, true
	}
	messages := make([]domain.TranscriptMessage, 0, len(history))
	for _, m := range history {
		if m.AuthorIsBot && !m.HasRichContent {
			continue
		}
		content := m.Content
		if content == "" {
			content = "[Embed/File]"
		}
		messages = append(messages, domain.TranscriptMessage{
			Author:    m.AuthorName,
			Content:   content,
			Timestamp: m.Timestamp.UTC().Format(domain.TranscriptTimeLayout),
		})
	}
	return messages, false
}

// ConfirmClosure runs after feedback arrives: an open ticket is closed by
// the system, a closed one has its channel deletion (re)scheduled.
func (s *TicketService) ConfirmClosure(ctx context.Context, number string) error {
	ticket, err := s.tickets.Get(ctx, number)
	if err != nil {
		return err
	}
	if ticket.IsOpen() {
		_, err := s.CloseTicket(ctx, CloseInput{Number: number, Actor: domain.SystemActor, System: true})
		if errors.Is(err, repository.ErrTicketAlreadyClosed) {
			return nil
		}
		return err
	}
	if s.deleter != nil && ticket.ChannelID != "" {
		s.deleter.Schedule(ticket.ChannelID, number)
	}
	return nil
}

// CallForHelp pings the carriers in the ticket channel, at most once per
// cooldown period per ticket.
func (s *TicketService) CallForHelp(ctx context.Context, actor domain.Actor, number string) error {
	unlock := s.ticketLocks.Lock(number)
	defer unlock()

	ticket, err := s.openTicket(ctx, number)
	if err != nil {
		return err
	}
	if actor.ID != ticket.CreatorID && !actor.Can(domain.CapabilityStaff) {
		return ErrNotParticipant
	}

	now := s.clock.Now()
	last, ok, err := s.helpCalls.LastCall(ctx, number)
	if err != nil {
		return err
	}
	if ok {
		if next := last.Add(s.cfg.HelpCooldown); now.Before(next) {
			remaining := next.Sub(now).Round(time.Minute)
			return ErrHelpCooldown.WithDetails(map[string]any{
				"retry_after":  remaining.String(),
				"available_at": next,
			})
		}
	}
	if err := s.helpCalls.RecordCall(ctx, number, now); err != nil {
		return err
	}

	s.recordHistory(ctx, number, actor.ID, domain.ChangeTypeHelpCall, nil, map[string]any{"called_at": now})
	s.send(ctx, ticket.ChannelID, platform.Message{
		Content: fmt.Sprintf("🆘 %s %s is calling for help in ticket-%s.",
			mentionRole(s.cfg.CarrierRoleID), mentionUser(actor.ID), number),
	})
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketHelpRequested,
		TicketNumber: number,
		Actor:        eventActor(actor),
		Payload:      events.TicketHelpRequestedPayload{ChannelID: ticket.ChannelID},
	})
	return nil
}

// ListUserTickets returns a creator's tickets, newest first.
func (s *TicketService) ListUserTickets(ctx context.Context, creatorID string, limit int) ([]domain.Ticket, error) {
	return s.tickets.ListByCreator(ctx, creatorID, limit)
}

// ListHistory returns the audit trail of a ticket for staff.
func (s *TicketService) ListHistory(ctx context.Context, actor domain.Actor, number string) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	if !actor.Can(domain.CapabilityStaff) {
		return nil, ErrPermissionDenied
	}
	if _, err := s.tickets.Get(ctx, number); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, number)
}

func (s *TicketService) openTicket(ctx context.Context, number string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOpen() {
		return nil, ErrTicketClosed
	}
	return ticket, nil
}

func (s *TicketService) activeCategory(raw string) (domain.Category, bool) {
	category, ok := domain.ParseCategory(raw)
	if !ok {
		return "", false
	}
	for _, c := range s.cfg.ActiveCategories {
		if c == category {
			return category, true
		}
	}
	return "", false
}

func (s *TicketService) send(ctx context.Context, channelID string, msg platform.Message) {
	if channelID == "" {
		return
	}
	if err := s.platform.SendMessage(ctx, channelID, msg); err != nil {
		s.logger.Warn("send channel message failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (s *TicketService) recordHistory(ctx context.Context, number, actorID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := domain.NewTicketHistory(uuid.NewString(), number, actorID, change, oldValue, newValue, s.clock.Now())
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history failed",
			zap.String("ticket_number", number),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.clock, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, clk clock.Clock, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clk.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{ID: actor.ID, Name: actor.Name}
}
