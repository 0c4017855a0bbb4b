package events

import (
	"time"

	"github.com/carrydesk/carry-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketClaimed       EventType = "ticket_claimed"
	EventTicketUnclaimed     EventType = "ticket_unclaimed"
	EventTicketPrioritySet   EventType = "ticket_priority_set"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketHelpRequested EventType = "ticket_help_requested"
	EventFeedbackSubmitted   EventType = "feedback_submitted"
	EventCarrySubmitted      EventType = "carry_submitted"
	EventCarryApproved       EventType = "carry_approved"
	EventCarryDeclined       EventType = "carry_declined"
	EventPointsRemoved       EventType = "points_removed"
	EventCarrierReplaced     EventType = "carrier_replaced"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TicketNumber string      `json:"ticket_number,omitempty"`
	Actor        Actor       `json:"actor"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CreatorID string          `json:"creator_id"`
	ChannelID string          `json:"channel_id"`
	Category  domain.Category `json:"category"`
}

// TicketClaimPayload is shared by claim and unclaim events.
type TicketClaimPayload struct {
	ChannelID string `json:"channel_id"`
	StaffID   string `json:"staff_id"`
}

// TicketPrioritySetPayload is published only for the winning write.
type TicketPrioritySetPayload struct {
	ChannelID string                `json:"channel_id"`
	Priority  domain.TicketPriority `json:"priority"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	CreatorID          string `json:"creator_id"`
	ChannelID          string `json:"channel_id"`
	Reason             string `json:"reason"`
	ClaimedBy          string `json:"claimed_by"`
	Category           string `json:"category"`
	TranscriptDegraded bool   `json:"transcript_degraded"`
	MessageCount       int    `json:"message_count"`
}

// TicketHelpRequestedPayload payload.
type TicketHelpRequestedPayload struct {
	ChannelID string `json:"channel_id"`
}

// FeedbackSubmittedPayload payload.
type FeedbackSubmittedPayload struct {
	UserID      string `json:"user_id"`
	Rating      int    `json:"rating"`
	Feedback    string `json:"feedback"`
	Suggestions string `json:"suggestions,omitempty"`
	ClosedBy    string `json:"closed_by,omitempty"`
}

// CarrySubmittedPayload payload.
type CarrySubmittedPayload struct {
	Carry domain.PendingCarry `json:"carry"`
}

// CarryResolvedPayload is shared by approve and decline events.
type CarryResolvedPayload struct {
	Carry    domain.PendingCarry `json:"carry"`
	NewTotal int                 `json:"new_total,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}

// PointsRemovedPayload payload.
type PointsRemovedPayload struct {
	StaffID   string `json:"staff_id"`
	Requested int    `json:"requested"`
	Removed   int    `json:"removed"`
	NewTotal  int    `json:"new_total"`
}

// CarrierReplacedPayload payload.
type CarrierReplacedPayload struct {
	ChannelID       string `json:"channel_id"`
	OriginalID      string `json:"original_id"`
	ReplacementID   string `json:"replacement_id"`
	PointsDeducted  int    `json:"points_deducted"`
	OriginalBalance int    `json:"original_balance"`
	Reason          string `json:"reason,omitempty"`
}
