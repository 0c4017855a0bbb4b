package bot

import (
	"fmt"
	"strconv"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/service"
	"github.com/carrydesk/carry-desk/internal/transcript"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

const (
	fieldDetails     = "details"
	fieldReason      = "reason"
	fieldRating      = "rating"
	fieldFeedback    = "feedback"
	fieldSuggestions = "suggestions"
)

func (b *Bot) componentHandlers() map[string]componentHandler {
	return map[string]componentHandler{
		service.ActionTicketOpen:   b.onTicketOpen,
		service.ActionClaim:        b.onClaim,
		service.ActionUnclaim:      b.onUnclaim,
		service.ActionClose:        b.onClose,
		service.ActionPriorityMenu: b.onPriorityMenu,
		service.ActionPrioritySet:  b.onPrioritySet,
		service.ActionHelp:         b.onHelp,
		service.ActionFeedback:     b.onFeedbackOpen,
		service.ActionCarryApprove: b.onCarryApprove,
		service.ActionCarryDecline: b.onCarryDecline,
	}
}

func (b *Bot) formHandlers() map[string]componentHandler {
	return map[string]componentHandler{
		service.FormTicketDetails: b.onTicketDetails,
		service.FormCloseReason:   b.onCloseReason,
		service.FormFeedback:      b.onFeedbackSubmit,
		service.FormDeclineReason: b.onDeclineReason,
	}
}

func (r *request) arg(idx int) string {
	if idx < len(r.args) {
		return r.args[idx]
	}
	return ""
}

func (r *request) form() map[string]string {
	return formValues(r.interaction.ModalSubmitData())
}

func (b *Bot) onTicketOpen(r *request) error {
	category := r.arg(0)
	form := intakeFor(category)
	return openModal(r.responder, r.interaction,
		service.ControlID(service.FormTicketDetails, category), form.title, form.modalFields()...)
}

func (b *Bot) onTicketDetails(r *request) error {
	category := r.arg(0)
	details, err := intakeFor(category).details(r.form())
	if err != nil {
		return err
	}
	ticket, err := b.tickets.CreateTicket(r.ctx, r.actor, service.CreateTicketInput{
		Category: category,
		Details:  details,
	})
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction,
		fmt.Sprintf("✅ Ticket #%s created: <#%s>", ticket.Number, ticket.ChannelID))
}

func (b *Bot) onClaim(r *request) error {
	ticket, err := b.tickets.Claim(r.ctx, r.actor, r.arg(0))
	if err != nil {
		return err
	}
	return replyMessage(r.responder, r.interaction, platform.Message{
		Content: fmt.Sprintf("You claimed ticket #%s.", ticket.Number),
		Buttons: []platform.Button{{
			CustomID: service.ControlID(service.ActionUnclaim, ticket.Number),
			Label:    "Unclaim",
			Style:    platform.ButtonSecondary,
		}},
	})
}

func (b *Bot) onUnclaim(r *request) error {
	ticket, err := b.tickets.Unclaim(r.ctx, r.actor, r.arg(0))
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf("Ticket #%s is unclaimed.", ticket.Number))
}

func (b *Bot) onClose(r *request) error {
	if !r.actor.Can(domain.CapabilityStaff) {
		return service.ErrPermissionDenied
	}
	number := r.arg(0)
	return openModal(r.responder, r.interaction,
		service.ControlID(service.FormCloseReason, number), "Close ticket #"+number,
		modalField{id: fieldReason, label: "Reason", placeholder: "Manual closure by staff", paragraph: true, maxLength: 500})
}

func (b *Bot) onCloseReason(r *request) error {
	reason := r.form()[fieldReason]
	if err := deferReply(r.responder, r.interaction); err != nil {
		return err
	}
	r.deferred = true

	res, err := b.tickets.CloseTicket(r.ctx, service.CloseInput{
		Number: r.arg(0),
		Actor:  r.actor,
		Reason: reason,
	})
	if err != nil {
		return err
	}
	saved := "Transcript saved."
	if res.Transcript == transcript.OutcomeDegraded {
		saved = "Transcript API unavailable, transcript saved locally."
	}
	return followUp(r.responder, r.interaction,
		fmt.Sprintf("🔒 Ticket #%s closed. %s This channel will be deleted shortly.", res.Ticket.Number, saved))
}

func (b *Bot) onPriorityMenu(r *request) error {
	return replyMessage(r.responder, r.interaction, service.PriorityMenu(r.arg(0)))
}

func (b *Bot) onPrioritySet(r *request) error {
	number := r.arg(0)
	priority, ok := domain.ParsePriority(r.arg(1))
	if !ok {
		return service.ErrInvalidPriority
	}
	res, err := b.tickets.SetPriority(r.ctx, r.actor, number, priority)
	if err != nil {
		return err
	}
	if !res.Applied {
		return replyText(r.responder, r.interaction, fmt.Sprintf("❌ %s Current priority: %s %s",
			capitalize(apperrors.UserMessage(service.ErrPriorityAlreadySet))+".", res.Current.Emoji(), res.Current))
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf("%s Priority set to **%s**.", priority.Emoji(), priority))
}

func (b *Bot) onHelp(r *request) error {
	if err := b.tickets.CallForHelp(r.ctx, r.actor, r.arg(0)); err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, "🆘 The carriers have been notified.")
}

func (b *Bot) onFeedbackOpen(r *request) error {
	number := r.arg(0)
	return openModal(r.responder, r.interaction,
		service.ControlID(service.FormFeedback, number), "Rate ticket #"+number,
		modalField{id: fieldRating, label: "Rating (1-5)", placeholder: "5", required: true, maxLength: 1},
		modalField{id: fieldFeedback, label: "How was your experience?", paragraph: true, required: true, maxLength: 1000},
		modalField{id: fieldSuggestions, label: "Suggestions", paragraph: true, maxLength: 1000})
}

func (b *Bot) onFeedbackSubmit(r *request) error {
	values := r.form()
	rating, err := strconv.Atoi(values[fieldRating])
	if err != nil {
		return service.ErrInvalidRating
	}
	if _, err := b.feedback.Submit(r.ctx, service.SubmitFeedbackInput{
		TicketNumber: r.arg(0),
		UserID:       r.actor.ID,
		Rating:       rating,
		Feedback:     values[fieldFeedback],
		Suggestions:  values[fieldSuggestions],
	}); err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, "✨ Thank you for your feedback!")
}

func (b *Bot) onCarryApprove(r *request) error {
	res, err := b.carries.Approve(r.ctx, r.arg(0), r.actor)
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf(
		"✅ Approved. <@%s> received %d points (total %d).", res.Carry.StaffID, res.Carry.Points, res.NewTotal))
}

func (b *Bot) onCarryDecline(r *request) error {
	if !r.actor.Can(domain.CapabilityManager) {
		return service.ErrPermissionDenied
	}
	id := r.arg(0)
	return openModal(r.responder, r.interaction,
		service.ControlID(service.FormDeclineReason, id), "Decline carry request",
		modalField{id: fieldReason, label: "Reason", paragraph: true, required: true, maxLength: 500})
}

func (b *Bot) onDeclineReason(r *request) error {
	carry, err := b.carries.Decline(r.ctx, r.arg(0), r.actor, r.form()[fieldReason])
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf("❌ Declined carry request `%s`.", carry.ID))
}
