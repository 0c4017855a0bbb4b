package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/idgen"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/repository"
)

const defaultLeaderboardSize = 10

// CarryService runs the carry approval workflow and the points ledger.
type CarryService struct {
	carries    repository.CarryRepository
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	platform   platform.Platform
	ids        idgen.Generator
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// CarryDependencies bundles collaborators for the carry service.
type CarryDependencies struct {
	CarryRepo   repository.CarryRepository
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Platform    platform.Platform
	IDs         idgen.Generator
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// CarryReportInput is a staff report of completed carries.
type CarryReportInput struct {
	StaffID       string
	StaffName     string
	UserCarriedID string
	Runs          int
	CarryType     string
	FloorOrTier   string
	Grade         string
}

// ApprovalResult reports an approved carry and the staff member's total.
type ApprovalResult struct {
	Carry    domain.PendingCarry
	NewTotal int
}

// PointsRemoval reports an applied deduction.
type PointsRemoval struct {
	Removed  int
	NewTotal int
}

// ReplaceCarrierInput hands a ticket from one carrier to another.
type ReplaceCarrierInput struct {
	TicketNumber   string
	OriginalID     string
	ReplacementID  string
	Reason         string
	PointsToDeduct int
}

// ReplacementResult summarizes a carrier replacement.
type ReplacementResult struct {
	ChannelID      string
	PreviousPoints int
	Deducted       int
	NewPoints      int
}

// NewCarryService constructs the service.
func NewCarryService(deps CarryDependencies) *CarryService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CarryService{
		carries:    deps.CarryRepo,
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		platform:   deps.Platform,
		ids:        deps.IDs,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// Submit validates a carry report and queues it for approval.
func (s *CarryService) Submit(ctx context.Context, actor domain.Actor, input CarryReportInput) (*domain.PendingCarry, error) {
	if !actor.Can(domain.CapabilityStaff) {
		return nil, ErrPermissionDenied
	}
	carryType, ok := domain.ParseCarryType(input.CarryType)
	if !ok {
		return nil, ErrInvalidCarryType.WithDetails(map[string]any{
			"valid": []domain.CarryType{domain.CarryTypeDungeon, domain.CarryTypeSlayer},
		})
	}
	grade, ok := domain.ParseGrade(input.Grade)
	if !ok {
		return nil, ErrInvalidGrade.WithDetails(map[string]any{
			"valid": []domain.Grade{domain.GradeS, domain.GradeSPlus},
		})
	}
	if input.Runs <= 0 {
		return nil, ErrInvalidRuns
	}
	if strings.TrimSpace(input.StaffID) == "" {
		return nil, ErrStaffRequired
	}
	points := ComputePoints(string(carryType), input.FloorOrTier, string(grade), input.Runs)
	if points == 0 {
		details := map[string]any{"valid": ValidOptions(carryType)}
		if carryType == domain.CarryTypeSlayer {
			details["hint"] = SlayerFormatHint
		}
		return nil, ErrInvalidFloorOrTier.WithDetails(details)
	}

	carry := &domain.PendingCarry{
		ID:            s.ids.NewID(),
		StaffID:       input.StaffID,
		StaffName:     input.StaffName,
		RequesterID:   actor.ID,
		RequesterName: actor.DisplayName(),
		UserCarriedID: input.UserCarriedID,
		Runs:          input.Runs,
		CarryType:     carryType,
		FloorOrTier:   normalizeFloorOrTier(input.FloorOrTier),
		Grade:         grade,
		Points:        points,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.carries.CreatePending(ctx, carry); err != nil {
		return nil, err
	}

	s.metrics.RecordCarry("submitted")
	s.publish(ctx, events.EventCarrySubmitted, actor, events.CarrySubmittedPayload{Carry: *carry})
	s.logger.Info("carry submitted",
		zap.String("carry_id", carry.ID),
		zap.String("staff_id", carry.StaffID),
		zap.String("requester_id", actor.ID),
		zap.Int("points", points))
	return carry, nil
}

// Approve credits the carry's points and removes it from the queue in one
// atomic step. A second resolution of the same id reports ErrCarryNotFound.
func (s *CarryService) Approve(ctx context.Context, id string, approver domain.Actor) (*ApprovalResult, error) {
	if !approver.Can(domain.CapabilityManager) {
		return nil, ErrPermissionDenied
	}
	carry, total, err := s.carries.ResolvePending(ctx, id, rejectSelf(approver), true)
	if err != nil {
		s.recordResolveFailure(err)
		return nil, err
	}

	s.metrics.RecordCarry("approved")
	s.publish(ctx, events.EventCarryApproved, approver, events.CarryResolvedPayload{Carry: *carry, NewTotal: total})
	s.logger.Info("carry approved",
		zap.String("carry_id", id),
		zap.String("staff_id", carry.StaffID),
		zap.String("approver_id", approver.ID),
		zap.Int("points", carry.Points),
		zap.Int("new_total", total))
	return &ApprovalResult{Carry: *carry, NewTotal: total}, nil
}

// Decline discards the carry without touching the ledger.
func (s *CarryService) Decline(ctx context.Context, id string, approver domain.Actor, reason string) (*domain.PendingCarry, error) {
	if !approver.Can(domain.CapabilityManager) {
		return nil, ErrPermissionDenied
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	carry, _, err := s.carries.ResolvePending(ctx, id, rejectSelf(approver), false)
	if err != nil {
		s.recordResolveFailure(err)
		return nil, err
	}

	s.metrics.RecordCarry("declined")
	s.publish(ctx, events.EventCarryDeclined, approver, events.CarryResolvedPayload{Carry: *carry, Reason: reason})
	s.logger.Info("carry declined",
		zap.String("carry_id", id),
		zap.String("staff_id", carry.StaffID),
		zap.String("approver_id", approver.ID),
		zap.String("reason", reason))
	return carry, nil
}

func rejectSelf(approver domain.Actor) repository.CarryGuard {
	return func(c *domain.PendingCarry) error {
		if c.StaffID == approver.ID {
			return ErrSelfApproval
		}
		return nil
	}
}

func (s *CarryService) recordResolveFailure(err error) {
	switch {
	case errors.Is(err, ErrCarryNotFound):
		s.metrics.RecordCarry("not_found")
	case errors.Is(err, ErrSelfApproval):
		s.metrics.RecordCarry("self_approval")
	}
}

// RemovePoints deducts up to amount from a staff member's total.
func (s *CarryService) RemovePoints(ctx context.Context, actor domain.Actor, staffID string, amount int) (*PointsRemoval, error) {
	if !actor.Can(domain.CapabilityManager) {
		return nil, ErrPermissionDenied
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	removed, total, err := s.carries.RemovePoints(ctx, staffID, amount)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventPointsRemoved, actor, events.PointsRemovedPayload{
		StaffID:   staffID,
		Requested: amount,
		Removed:   removed,
		NewTotal:  total,
	})
	s.logger.Info("points removed",
		zap.String("staff_id", staffID),
		zap.String("manager_id", actor.ID),
		zap.Int("requested", amount),
		zap.Int("removed", removed),
		zap.Int("new_total", total))
	return &PointsRemoval{Removed: removed, NewTotal: total}, nil
}

// Points returns a staff member's approved total.
func (s *CarryService) Points(ctx context.Context, staffID string) (int, error) {
	return s.carries.Points(ctx, staffID)
}

// Leaderboard returns the top totals, highest first.
func (s *CarryService) Leaderboard(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	return s.carries.Leaderboard(ctx, limit)
}

// ListPending returns queued carries, oldest first.
func (s *CarryService) ListPending(ctx context.Context, actor domain.Actor, limit int) ([]domain.PendingCarry, error) {
	if !actor.Can(domain.CapabilityManager) {
		return nil, ErrPermissionDenied
	}
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	return s.carries.ListPending(ctx, limit)
}

// ValidOptions lists floor/tier values for a carry type.
func (s *CarryService) ValidOptions(carryType string) ([]string, error) {
	ct, ok := domain.ParseCarryType(carryType)
	if !ok {
		return nil, ErrInvalidCarryType
	}
	return ValidOptions(ct), nil
}

// ReplaceCarrier swaps the carrier on a ticket, deducting points from the
// original carrier. Channel permission changes are best effort.
func (s *CarryService) ReplaceCarrier(ctx context.Context, actor domain.Actor, input ReplaceCarrierInput) (*ReplacementResult, error) {
	if !actor.Can(domain.CapabilityManager) {
		return nil, ErrPermissionDenied
	}
	if input.PointsToDeduct < 0 {
		return nil, ErrInvalidAmount
	}
	if input.OriginalID == input.ReplacementID {
		return nil, ErrSameCarrier
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	ticket, err := s.tickets.Get(ctx, input.TicketNumber)
	if err != nil {
		return nil, err
	}

	previous, err := s.carries.Points(ctx, input.OriginalID)
	if err != nil {
		return nil, err
	}
	if previous == 0 && input.PointsToDeduct > 0 {
		return nil, ErrNoPointsToDeduct.WithDetails(map[string]any{"staff_id": input.OriginalID})
	}

	result := &ReplacementResult{ChannelID: ticket.ChannelID, PreviousPoints: previous, NewPoints: previous}
	if input.PointsToDeduct > 0 {
		removed, total, err := s.carries.RemovePoints(ctx, input.OriginalID, input.PointsToDeduct)
		if err != nil {
			return nil, err
		}
		result.Deducted, result.NewPoints = removed, total
	}

	if ticket.IsOpen() && ticket.ChannelID != "" {
		s.swapChannelAccess(ctx, ticket, input)
		if ticket.ClaimedBy == input.OriginalID {
			if err := s.tickets.SetClaim(ctx, ticket.Number, input.ReplacementID); err != nil {
				s.logger.Warn("move claim to replacement failed", zap.String("ticket_number", ticket.Number), zap.Error(err))
			}
		}
	}

	s.recordHistory(ctx, ticket.Number, actor.ID,
		map[string]any{"carrier": input.OriginalID},
		map[string]any{"carrier": input.ReplacementID, "reason": reason, "points_deducted": result.Deducted})
	s.publish(ctx, events.EventCarrierReplaced, actor, events.CarrierReplacedPayload{
		ChannelID:       ticket.ChannelID,
		OriginalID:      input.OriginalID,
		ReplacementID:   input.ReplacementID,
		PointsDeducted:  result.Deducted,
		OriginalBalance: previous,
		Reason:          reason,
	}, ticket.Number)
	s.logger.Info("carrier replaced",
		zap.String("ticket_number", ticket.Number),
		zap.String("original_id", input.OriginalID),
		zap.String("replacement_id", input.ReplacementID),
		zap.Int("points_deducted", result.Deducted))
	return result, nil
}

func (s *CarryService) swapChannelAccess(ctx context.Context, ticket *domain.Ticket, input ReplaceCarrierInput) {
	notices := []string{
		fmt.Sprintf("%s has been replaced by %s in ticket-%s",
			mentionUser(input.OriginalID), mentionUser(input.ReplacementID), ticket.Number),
		fmt.Sprintf("🔄 **Staff Update**: %s has been added to assist with this ticket.", mentionUser(input.ReplacementID)),
	}
	for _, text := range notices {
		if err := s.platform.SendMessage(ctx, ticket.ChannelID, platform.Message{Content: text}); err != nil {
			s.logger.Warn("send replacement notice failed", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
		}
	}
	if err := s.platform.SetMemberAccess(ctx, ticket.ChannelID, input.OriginalID, false); err != nil {
		s.logger.Warn("revoke carrier access failed", zap.String("staff_id", input.OriginalID), zap.Error(err))
	}
	if err := s.platform.SetMemberAccess(ctx, ticket.ChannelID, input.ReplacementID, true); err != nil {
		s.logger.Warn("grant carrier access failed", zap.String("staff_id", input.ReplacementID), zap.Error(err))
	}
}

func (s *CarryService) recordHistory(ctx context.Context, number, actorID string, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := domain.NewTicketHistory(uuid.NewString(), number, actorID, domain.ChangeTypeCarrier, oldValue, newValue, s.clock.Now())
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history failed", zap.String("ticket_number", number), zap.Error(err))
	}
}

func (s *CarryService) publish(ctx context.Context, eventType events.EventType, actor domain.Actor, payload any, ticketNumber ...string) {
	event := events.Event{Type: eventType, Actor: eventActor(actor), Payload: payload}
	if len(ticketNumber) > 0 {
		event.TicketNumber = ticketNumber[0]
	}
	publish(ctx, s.dispatcher, s.clock, event)
}
