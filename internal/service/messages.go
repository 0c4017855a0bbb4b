package service

import (
	"fmt"
	"strings"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/platform"
)

const (
	colorBlurple = 0x5865F2
	colorBlue    = 0x3498DB
	colorGreen   = 0x2ECC71
	colorOrange  = 0xE67E22
	colorRed     = 0xE74C3C
)

func mentionUser(id string) string { return "<@" + id + ">" }

func mentionRole(id string) string {
	if id == "" {
		return "@Carriers"
	}
	return "<@&" + id + ">"
}

func welcomeMessage(ticket *domain.Ticket, creator domain.Actor) platform.Message {
	details := strings.ReplaceAll(ticket.Details, "**", "")
	if strings.TrimSpace(details) == "" {
		details = "No details provided"
	}
	return platform.Message{
		Embed: &platform.Embed{
			Title: fmt.Sprintf("Welcome @%s! Carriers will be with you shortly.", creator.DisplayName()),
			Description: fmt.Sprintf(
				"New %s Request\n\n"+
					"🎯 Service Type: %s\n"+
					"🔖 Ticket ID: #%s\n"+
					"👤 Customer: %s\n\n"+
					"📞 Next Steps:\n"+
					"• One of our carriers will assist you shortly\n"+
					"• Please provide any additional details if needed\n"+
					"• Use priority settings only when absolutely necessary\n\n"+
					"📋 Service Details:\n%s",
				ticket.Category, ticket.Category, ticket.Number, mentionUser(ticket.CreatorID), details),
			Color: colorBlurple,
		},
		Buttons: []platform.Button{
			{CustomID: ControlID(ActionClaim, ticket.Number), Label: "Claim", Emoji: "🙋", Style: platform.ButtonSuccess},
			{CustomID: ControlID(ActionClose, ticket.Number), Label: "Close", Emoji: "🔒", Style: platform.ButtonDanger},
			{CustomID: ControlID(ActionPriorityMenu, ticket.Number), Label: "Priority Select", Style: platform.ButtonSecondary},
			{CustomID: ControlID(ActionHelp, ticket.Number), Label: "Call for help", Emoji: "🆘", Style: platform.ButtonPrimary},
		},
	}
}

// PriorityMenu renders the one-shot priority picker for a ticket.
func PriorityMenu(number string) platform.Message {
	styles := map[domain.TicketPriority]platform.ButtonStyle{
		domain.TicketPriorityLow:    platform.ButtonSuccess,
		domain.TicketPriorityMedium: platform.ButtonPrimary,
		domain.TicketPriorityHigh:   platform.ButtonDanger,
		domain.TicketPriorityUrgent: platform.ButtonDanger,
	}
	msg := platform.Message{Content: "Select the priority level for this ticket:"}
	for _, p := range domain.Priorities {
		msg.Buttons = append(msg.Buttons, platform.Button{
			CustomID: ControlID(ActionPrioritySet, number, string(p)),
			Label:    string(p),
			Emoji:    p.Emoji(),
			Style:    styles[p],
		})
	}
	return msg
}

func priorityMessage(p domain.TicketPriority, actorID string) platform.Message {
	return platform.Message{Embed: &platform.Embed{
		Title:       fmt.Sprintf("%s Priority Set: %s", p.Emoji(), p),
		Description: fmt.Sprintf("Ticket priority has been set to **%s** by %s", p, mentionUser(actorID)),
		Color:       colorBlue,
	}}
}

func priorityNotice(carrierRoleID, actorID, number string, p domain.TicketPriority) platform.Message {
	text := fmt.Sprintf("%s %s has set ticket-%s priority to **%s** %s.",
		mentionRole(carrierRoleID), mentionUser(actorID), number, p, p.Emoji())
	switch p {
	case domain.TicketPriorityUrgent:
		text += " **URGENT ATTENTION REQUIRED!**"
	case domain.TicketPriorityHigh:
		text += " **High priority assistance needed.**"
	}
	return platform.Message{Content: text}
}

func closedMessage(actor domain.Actor, reason string) platform.Message {
	return platform.Message{Embed: &platform.Embed{
		Title:       "🔒 Ticket Closed",
		Description: fmt.Sprintf("This ticket has been closed by %s\n\n**Reason:** %s", mentionUser(actor.ID), reason),
		Color:       colorOrange,
	}}
}

func feedbackPrompt(number, userID, closedBy string, hours int) platform.Message {
	return platform.Message{
		Embed: &platform.Embed{
			Title: "Rate & Give Feedback",
			Description: fmt.Sprintf(
				"%s, you recently contacted staff through ticket %s. How would you rate the help of %s?\n\n"+
					"You have %d hours to give a review.\nThank you for contacting us!",
				mentionUser(userID), number, closedBy, hours),
			Color: colorBlue,
		},
		Buttons: []platform.Button{
			{CustomID: ControlID(ActionFeedback, number), Label: "Rate & Give Feedback", Emoji: "✨", Style: platform.ButtonSuccess},
		},
	}
}

func approvalRequest(c domain.PendingCarry) platform.Message {
	return platform.Message{
		Embed: &platform.Embed{
			Title: "🎯 Carry Approval Request",
			Color: colorOrange,
			Fields: []platform.EmbedField{
				{Name: "Staff Member", Value: mentionUser(c.StaffID), Inline: true},
				{Name: "Requested by", Value: mentionUser(c.RequesterID), Inline: true},
				{Name: "User Carried", Value: orDash(c.UserCarriedID, mentionUser), Inline: true},
				{Name: "Number of Runs", Value: fmt.Sprint(c.Runs), Inline: true},
				{Name: "Carry Type", Value: string(c.CarryType), Inline: true},
				{Name: "Floor/Tier", Value: strings.ToUpper(c.FloorOrTier), Inline: true},
				{Name: "Grade", Value: strings.ToUpper(string(c.Grade)), Inline: true},
				{Name: "Total Points", Value: fmt.Sprint(c.Points), Inline: true},
				{Name: "Request ID", Value: c.ID},
			},
		},
		Buttons: []platform.Button{
			{CustomID: ControlID(ActionCarryApprove, c.ID), Label: "Approve", Emoji: "✅", Style: platform.ButtonSuccess},
			{CustomID: ControlID(ActionCarryDecline, c.ID), Label: "Decline", Emoji: "❌", Style: platform.ButtonDanger},
		},
	}
}

func orDash(v string, format func(string) string) string {
	if v == "" {
		return "-"
	}
	return format(v)
}
