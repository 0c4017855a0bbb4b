package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets. Closed is terminal.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// Unclaimed is reported for tickets no staff member has claimed.
const Unclaimed = "Unclaimed"

// Category is the closed set of ticket categories offered in the menu.
type Category string

const (
	CategoryDungeonCarry Category = "Dungeon Carry"
	CategorySlayerCarry  Category = "Slayer Carry"
	CategorySupport      Category = "Support Tickets"
)

// Categories lists every known category in menu order.
var Categories = []Category{CategoryDungeonCarry, CategorySlayerCarry, CategorySupport}

// ParseCategory maps free text onto a known category, ignoring case and
// surrounding whitespace.
func ParseCategory(raw string) (Category, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(raw, string(c)) {
			return c, true
		}
	}
	return "", false
}

// TicketPriority is a write-once urgency label.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityHigh   TicketPriority = "High"
	TicketPriorityUrgent TicketPriority = "Urgent"
)

// Priorities lists priorities from least to most urgent.
var Priorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent}

// ParsePriority maps free text onto a priority, ignoring case.
func ParsePriority(raw string) (TicketPriority, bool) {
	raw = strings.TrimSpace(raw)
	for _, p := range Priorities {
		if strings.EqualFold(raw, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Emoji returns the badge shown in front of the channel name.
func (p TicketPriority) Emoji() string {
	switch p {
	case TicketPriorityLow:
		return "🟢"
	case TicketPriorityMedium:
		return "🟡"
	case TicketPriorityHigh:
		return "🟠"
	case TicketPriorityUrgent:
		return "🔴"
	default:
		return ""
	}
}

// Ticket is the aggregate for carry and support requests. Records are
// never deleted; closing only flips Status.
type Ticket struct {
	Number    string         `json:"ticket_number"`
	CreatorID string         `json:"creator_id"`
	ChannelID string         `json:"channel_id"`
	Category  Category       `json:"category"`
	Status    TicketStatus   `json:"status"`
	ClaimedBy string         `json:"claimed_by,omitempty"`
	Priority  TicketPriority `json:"priority,omitempty"`
	Details   string         `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ClosedAt  *time.Time     `json:"closed_at,omitempty"`
}

// IsOpen reports whether the ticket is still accepting transitions.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}

// Claim returns the claimant or Unclaimed.
func (t *Ticket) Claim() string {
	if t.ClaimedBy == "" {
		return Unclaimed
	}
	return t.ClaimedBy
}

// ChannelName renders the platform channel name for a ticket, prefixed
// with the priority badge once one is set.
func ChannelName(number string, priority TicketPriority) string {
	return priority.Emoji() + "ticket-" + number
}
