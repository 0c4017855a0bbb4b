package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/platform"
)

// NotificationConfig names the log channels notifications are posted to.
// Empty channel IDs disable the corresponding notification.
type NotificationConfig struct {
	PriorityChannelID   string
	ApprovalChannelID   string
	FeedbackChannelID   string
	TranscriptChannelID string
	CarrierLogChannelID string
	CarrierRoleID       string
}

// NotificationService mirrors domain events into the guild log channels.
// Handlers only talk to the platform and never call back into services.
type NotificationService struct {
	dispatcher events.Dispatcher
	platform   platform.Platform
	logger     *zap.Logger
	cfg        NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, p platform.Platform, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		platform:   p,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logOnly)
	n.dispatcher.Subscribe(events.EventTicketClaimed, n.logOnly)
	n.dispatcher.Subscribe(events.EventTicketUnclaimed, n.logOnly)
	n.dispatcher.Subscribe(events.EventTicketHelpRequested, n.logOnly)
	n.dispatcher.Subscribe(events.EventTicketPrioritySet, n.handlePrioritySet)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventFeedbackSubmitted, n.handleFeedbackSubmitted)
	n.dispatcher.Subscribe(events.EventCarrySubmitted, n.handleCarrySubmitted)
	n.dispatcher.Subscribe(events.EventCarryApproved, n.handleCarryResolved)
	n.dispatcher.Subscribe(events.EventCarryDeclined, n.handleCarryResolved)
	n.dispatcher.Subscribe(events.EventPointsRemoved, n.handlePointsRemoved)
	n.dispatcher.Subscribe(events.EventCarrierReplaced, n.handleCarrierReplaced)
}

func (n *NotificationService) logOnly(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_number", event.TicketNumber),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload),
	)
	return nil
}

func (n *NotificationService) handlePrioritySet(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketPrioritySetPayload)
	if !ok {
		return nil
	}
	return n.post(ctx, n.cfg.PriorityChannelID, priorityNotice(n.cfg.CarrierRoleID, event.Actor.ID, event.TicketNumber, payload.Priority))
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	transcriptState := "Saved"
	if payload.TranscriptDegraded {
		transcriptState = "Saved locally (API unavailable)"
	}
	msg := platform.Message{Embed: &platform.Embed{
		Title: fmt.Sprintf("📄 Ticket #%s Closed", event.TicketNumber),
		Color: colorOrange,
		Fields: []platform.EmbedField{
			{Name: "Creator", Value: orDash(payload.CreatorID, mentionUser), Inline: true},
			{Name: "Closed by", Value: closerName(event.Actor), Inline: true},
			{Name: "Claimed by", Value: claimantName(payload.ClaimedBy), Inline: true},
			{Name: "Category", Value: payload.Category, Inline: true},
			{Name: "Messages", Value: fmt.Sprint(payload.MessageCount), Inline: true},
			{Name: "Transcript", Value: transcriptState, Inline: true},
			{Name: "Reason", Value: payload.Reason},
		},
	}}
	if err := n.post(ctx, n.cfg.TranscriptChannelID, msg); err != nil {
		return err
	}
	if payload.CreatorID == "" || n.platform == nil {
		return nil
	}
	dm := platform.Message{Embed: &platform.Embed{
		Title: "Your ticket has been closed",
		Description: fmt.Sprintf("Ticket #%s was closed by %s.\n\n**Reason:** %s\n\nA transcript of %d messages has been saved to your history.",
			event.TicketNumber, closerName(event.Actor), payload.Reason, payload.MessageCount),
		Color: colorBlue,
	}}
	if _, err := n.platform.SendDirectMessage(ctx, payload.CreatorID, dm); err != nil {
		n.logger.Warn("closure DM not delivered", zap.String("ticket_number", event.TicketNumber), zap.Error(err))
	}
	return nil
}

func (n *NotificationService) handleFeedbackSubmitted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.FeedbackSubmittedPayload)
	if !ok {
		return nil
	}
	fields := []platform.EmbedField{
		{Name: "User", Value: mentionUser(payload.UserID), Inline: true},
		{Name: "Ticket", Value: "#" + event.TicketNumber, Inline: true},
		{Name: "Closed by", Value: orDash(payload.ClosedBy, func(s string) string { return s }), Inline: true},
		{Name: "Rating", Value: stars(payload.Rating), Inline: true},
		{Name: "Feedback", Value: payload.Feedback},
	}
	if payload.Suggestions != "" {
		fields = append(fields, platform.EmbedField{Name: "Suggestions", Value: payload.Suggestions})
	}
	return n.post(ctx, n.cfg.FeedbackChannelID, platform.Message{Embed: &platform.Embed{
		Title:  "⭐ New Feedback",
		Color:  colorGreen,
		Fields: fields,
	}})
}

func (n *NotificationService) handleCarrySubmitted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CarrySubmittedPayload)
	if !ok {
		return nil
	}
	return n.post(ctx, n.cfg.ApprovalChannelID, approvalRequest(payload.Carry))
}

func (n *NotificationService) handleCarryResolved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CarryResolvedPayload)
	if !ok {
		return nil
	}
	var msg platform.Message
	if event.Type == events.EventCarryApproved {
		msg = platform.Message{Embed: &platform.Embed{
			Title: "✅ Carry Approved",
			Description: fmt.Sprintf("%s approved request `%s`. %s received **%d** points (total %d).",
				mentionUser(event.Actor.ID), payload.Carry.ID, mentionUser(payload.Carry.StaffID), payload.Carry.Points, payload.NewTotal),
			Color: colorGreen,
		}}
	} else {
		msg = platform.Message{Embed: &platform.Embed{
			Title: "❌ Carry Declined",
			Description: fmt.Sprintf("%s declined request `%s` from %s.\n\n**Reason:** %s",
				mentionUser(event.Actor.ID), payload.Carry.ID, mentionUser(payload.Carry.StaffID), payload.Reason),
			Color: colorRed,
		}}
	}
	return n.post(ctx, n.cfg.ApprovalChannelID, msg)
}

func (n *NotificationService) handlePointsRemoved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PointsRemovedPayload)
	if !ok {
		return nil
	}
	return n.post(ctx, n.cfg.CarrierLogChannelID, platform.Message{Embed: &platform.Embed{
		Title: "➖ Points Removed",
		Description: fmt.Sprintf("%s removed **%d** points from %s (requested %d). New total: %d.",
			mentionUser(event.Actor.ID), payload.Removed, mentionUser(payload.StaffID), payload.Requested, payload.NewTotal),
		Color: colorRed,
	}})
}

func (n *NotificationService) handleCarrierReplaced(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CarrierReplacedPayload)
	if !ok {
		return nil
	}
	fields := []platform.EmbedField{
		{Name: "Ticket", Value: "#" + event.TicketNumber, Inline: true},
		{Name: "Original Carrier", Value: mentionUser(payload.OriginalID), Inline: true},
		{Name: "Replacement", Value: mentionUser(payload.ReplacementID), Inline: true},
		{Name: "Points Deducted", Value: fmt.Sprint(payload.PointsDeducted), Inline: true},
		{Name: "Previous Balance", Value: fmt.Sprint(payload.OriginalBalance), Inline: true},
	}
	if payload.Reason != "" {
		fields = append(fields, platform.EmbedField{Name: "Reason", Value: payload.Reason})
	}
	return n.post(ctx, n.cfg.CarrierLogChannelID, platform.Message{Embed: &platform.Embed{
		Title:  "🔁 Carrier Replaced",
		Color:  colorOrange,
		Fields: fields,
	}})
}

func (n *NotificationService) post(ctx context.Context, channelID string, msg platform.Message) error {
	if channelID == "" || n.platform == nil {
		return nil
	}
	if err := n.platform.SendMessage(ctx, channelID, msg); err != nil {
		n.logger.Warn("notification not delivered", zap.String("channel_id", channelID), zap.Error(err))
		return err
	}
	return nil
}

func closerName(a events.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return mentionUser(a.ID)
}

func claimantName(id string) string {
	if id == "" || id == domain.Unclaimed {
		return domain.Unclaimed
	}
	return mentionUser(id)
}

func stars(rating int) string {
	return fmt.Sprintf("%s (%d/%d)", strings.Repeat("⭐", rating), rating, domain.MaxRating)
}
