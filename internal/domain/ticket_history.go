package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated  TicketChangeType = "CREATED"
	ChangeTypeStatus   TicketChangeType = "STATUS_CHANGE"
	ChangeTypeClaim    TicketChangeType = "CLAIM_CHANGE"
	ChangeTypePriority TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeHelpCall TicketChangeType = "HELP_CALL"
	ChangeTypeCarrier  TicketChangeType = "CARRIER_CHANGE"
)

var changeLabels = map[TicketChangeType]string{
	ChangeTypeCreated:  "opened",
	ChangeTypeStatus:   "status changed",
	ChangeTypeClaim:    "claim changed",
	ChangeTypePriority: "priority changed",
	ChangeTypeHelpCall: "called for help",
	ChangeTypeCarrier:  "carrier replaced",
}

// Label is the human readable verb for the change.
func (c TicketChangeType) Label() string {
	if l, ok := changeLabels[c]; ok {
		return l
	}
	return strings.ToLower(strings.ReplaceAll(string(c), "_", " "))
}

// TicketHistory is one append-only audit record of a ticket mutation.
// OldValue and NewValue hold only the fields the mutation touched.
type TicketHistory struct {
	ID           string           `json:"id"`
	TicketNumber string           `json:"ticket_number"`
	ChangedByID  string           `json:"changed_by_id"`
	ChangeType   TicketChangeType `json:"change_type"`
	OldValue     map[string]any   `json:"old_value,omitempty"`
	NewValue     map[string]any   `json:"new_value,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewTicketHistory stamps an entry for a change made by actorID at now.
func NewTicketHistory(id, number, actorID string, change TicketChangeType, oldValue, newValue map[string]any, now time.Time) *TicketHistory {
	return &TicketHistory{
		ID:           id,
		TicketNumber: number,
		ChangedByID:  actorID,
		ChangeType:   change,
		OldValue:     oldValue,
		NewValue:     newValue,
		CreatedAt:    now,
	}
}

// Summary renders the entry as a single line, e.g.
// "2025-06-01 18:00 claim changed by <@u1>: claimed_by Unclaimed → u1".
func (h TicketHistory) Summary() string {
	actor := "system"
	if h.ChangedByID != "" && h.ChangedByID != SystemActorID {
		actor = "<@" + h.ChangedByID + ">"
	}
	line := fmt.Sprintf("%s %s by %s", h.CreatedAt.UTC().Format("2006-01-02 15:04"), h.ChangeType.Label(), actor)
	if diff := h.diff(); diff != "" {
		line += ": " + diff
	}
	return line
}

func (h TicketHistory) diff() string {
	keys := make([]string, 0, len(h.NewValue))
	for k := range h.NewValue {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if old, ok := h.OldValue[k]; ok {
			parts = append(parts, fmt.Sprintf("%s %v → %v", k, old, h.NewValue[k]))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %v", k, h.NewValue[k]))
	}
	return strings.Join(parts, ", ")
}
