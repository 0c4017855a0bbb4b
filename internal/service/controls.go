package service

import "strings"

// Interactive control actions. A control's custom ID is the action and
// its arguments joined by ':'; state is always re-read from the stores.
const (
	ActionClose        = "ticket_close"
	ActionClaim        = "ticket_claim"
	ActionUnclaim      = "ticket_unclaim"
	ActionPriorityMenu = "ticket_priority"
	ActionPrioritySet  = "priority_set"
	ActionHelp         = "ticket_help"
	ActionFeedback     = "feedback_open"
	ActionCarryApprove = "carry_approve"
	ActionCarryDecline = "carry_decline"
	ActionTicketOpen   = "ticket_open"
)

// Modal forms submitted back to the bot.
const (
	FormTicketDetails = "ticket_details"
	FormCloseReason   = "close_reason"
	FormFeedback      = "feedback_submit"
	FormDeclineReason = "decline_reason"
)

const controlSeparator = ":"

// ControlID builds a control custom ID.
func ControlID(action string, args ...string) string {
	return strings.Join(append([]string{action}, args...), controlSeparator)
}

// ParseControlID splits a custom ID into its action and arguments.
func ParseControlID(id string) (string, []string) {
	parts := strings.Split(id, controlSeparator)
	return parts[0], parts[1:]
}
