package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/service"
)

const (
	cmdTicketPanel    = "ticket_panel"
	cmdCarried        = "carried"
	cmdPoints         = "points"
	cmdLeaderboard    = "leaderboard"
	cmdPendingCarries = "pending_carries"
	cmdRemovePoints   = "remove_points"
	cmdReplaceCarrier = "replace_carrier"
	cmdChart          = "chart"
	cmdMyTickets      = "my_tickets"
	cmdTicketHistory  = "ticket_history"
)

var minOne = 1.0

var carryTypeChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Dungeon", Value: string(domain.CarryTypeDungeon)},
	{Name: "Slayer", Value: string(domain.CarryTypeSlayer)},
}

// Commands lists the guild slash commands.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: cmdTicketPanel, Description: "Post the ticket panel in this channel"},
		{
			Name:        cmdCarried,
			Description: "Report completed carries for approval",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "staff", Description: "Staff member who carried", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "runs", Description: "Number of runs", Required: true, MinValue: &minOne},
				{Type: discordgo.ApplicationCommandOptionString, Name: "carry_type", Description: "Dungeon or slayer", Required: true, Choices: carryTypeChoices},
				{Type: discordgo.ApplicationCommandOptionString, Name: "floor_or_tier", Description: "e.g. f7, m3 or 'voidgloom t4'", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "grade", Description: "Run grade", Required: true, Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "S", Value: string(domain.GradeS)},
					{Name: "S+", Value: string(domain.GradeSPlus)},
				}},
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user_carried", Description: "Customer that was carried"},
			},
		},
		{
			Name:        cmdPoints,
			Description: "Show approved carry points",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Staff member, defaults to you"},
			},
		},
		{Name: cmdLeaderboard, Description: "Top carriers by points"},
		{Name: cmdPendingCarries, Description: "List carry requests waiting for approval"},
		{
			Name:        cmdRemovePoints,
			Description: "Deduct points from a staff member",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Staff member", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Points to remove", Required: true, MinValue: &minOne},
			},
		},
		{
			Name:        cmdReplaceCarrier,
			Description: "Hand a ticket over to another carrier",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "ticket", Description: "Ticket number", Required: true},
				{Type: discordgo.ApplicationCommandOptionUser, Name: "original", Description: "Carrier being replaced", Required: true},
				{Type: discordgo.ApplicationCommandOptionUser, Name: "replacement", Description: "New carrier", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Why the carrier is replaced", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "points", Description: "Points to deduct from the original carrier"},
			},
		},
		{
			Name:        cmdChart,
			Description: "Show the points chart",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "carry_type", Description: "Dungeon or slayer", Required: true, Choices: carryTypeChoices},
			},
		},
		{Name: cmdMyTickets, Description: "List your tickets"},
		{
			Name:        cmdTicketHistory,
			Description: "Show the audit trail of a ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "ticket", Description: "Ticket number", Required: true},
			},
		},
	}
}

func (b *Bot) commandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		cmdTicketPanel:    b.cmdTicketPanel,
		cmdCarried:        b.cmdCarried,
		cmdPoints:         b.cmdPoints,
		cmdLeaderboard:    b.cmdLeaderboard,
		cmdPendingCarries: b.cmdPendingCarries,
		cmdRemovePoints:   b.cmdRemovePoints,
		cmdReplaceCarrier: b.cmdReplaceCarrier,
		cmdChart:          b.cmdChart,
		cmdMyTickets:      b.cmdMyTickets,
		cmdTicketHistory:  b.cmdTicketHistory,
	}
}

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(data discordgo.ApplicationCommandInteractionData) commandOptions {
	opts := make(commandOptions, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o
	}
	return opts
}

// str reads string-valued options; user options carry the user ID.
func (o commandOptions) str(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	v, _ := opt.Value.(string)
	return strings.TrimSpace(v)
}

func (o commandOptions) user(name string) string {
	return o.str(name)
}

// int reads integer options, which arrive as JSON numbers.
func (o commandOptions) int(name string) int {
	opt, ok := o[name]
	if !ok {
		return 0
	}
	switch v := opt.Value.(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// TicketPanel renders the message offering one button per category.
func TicketPanel(categories []domain.Category) platform.Message {
	msg := platform.Message{Embed: &platform.Embed{
		Title:       "🎫 Open a Ticket",
		Description: "Pick the service you need. A private channel is created for you and our carriers are notified.",
		Color:       0x5865F2,
	}}
	for _, c := range categories {
		msg.Buttons = append(msg.Buttons, platform.Button{
			CustomID: service.ControlID(service.ActionTicketOpen, string(c)),
			Label:    string(c),
			Style:    platform.ButtonPrimary,
		})
	}
	return msg
}

func (b *Bot) cmdTicketPanel(r *request, _ discordgo.ApplicationCommandInteractionData) error {
	if !r.actor.Can(domain.CapabilityAdmin) {
		return service.ErrPermissionDenied
	}
	if err := b.platform.SendMessage(r.ctx, r.interaction.ChannelID, TicketPanel(b.tickets.ActiveCategories())); err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, "Ticket panel posted.")
}

func (b *Bot) cmdCarried(r *request, data discordgo.ApplicationCommandInteractionData) error {
	opts := optionsOf(data)
	carry, err := b.carries.Submit(r.ctx, r.actor, service.CarryReportInput{
		StaffID:       opts.user("staff"),
		UserCarriedID: opts.user("user_carried"),
		Runs:          opts.int("runs"),
		CarryType:     opts.str("carry_type"),
		FloorOrTier:   opts.str("floor_or_tier"),
		Grade:         opts.str("grade"),
	})
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf(
		"✅ Carry request `%s` submitted for approval: %d × %s %s (%s) = **%d** points.",
		carry.ID, carry.Runs, carry.CarryType, strings.ToUpper(carry.FloorOrTier), strings.ToUpper(string(carry.Grade)), carry.Points))
}

func (b *Bot) cmdPoints(r *request, data discordgo.ApplicationCommandInteractionData) error {
	target := optionsOf(data).user("user")
	if target == "" {
		target = r.actor.ID
	}
	total, err := b.carries.Points(r.ctx, target)
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf("<@%s> has **%d** points.", target, total))
}

func (b *Bot) cmdLeaderboard(r *request, _ discordgo.ApplicationCommandInteractionData) error {
	board, err := b.carries.Leaderboard(r.ctx, 0)
	if err != nil {
		return err
	}
	if len(board) == 0 {
		return replyText(r.responder, r.interaction, "No points have been awarded yet.")
	}
	var sb strings.Builder
	for idx, entry := range board {
		fmt.Fprintf(&sb, "%d. <@%s> - %d points\n", idx+1, entry.StaffID, entry.Points)
	}
	return replyMessage(r.responder, r.interaction, platform.Message{Embed: &platform.Embed{
		Title:       "🏆 Carrier Leaderboard",
		Description: sb.String(),
		Color:       0xF1C40F,
	}})
}

func (b *Bot) cmdPendingCarries(r *request, _ discordgo.ApplicationCommandInteractionData) error {
	pending, err := b.carries.ListPending(r.ctx, r.actor, 0)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return replyText(r.responder, r.interaction, "No carry requests are waiting.")
	}
	var sb strings.Builder
	for _, c := range pending {
		fmt.Fprintf(&sb, "`%s` <@%s>: %d × %s %s (%s) = %d points\n",
			c.ID, c.StaffID, c.Runs, c.CarryType, strings.ToUpper(c.FloorOrTier), strings.ToUpper(string(c.Grade)), c.Points)
	}
	return replyMessage(r.responder, r.interaction, platform.Message{Embed: &platform.Embed{
		Title:       "⏳ Pending Carries",
		Description: sb.String(),
		Color:       0xE67E22,
	}})
}

func (b *Bot) cmdRemovePoints(r *request, data discordgo.ApplicationCommandInteractionData) error {
	opts := optionsOf(data)
	staffID := opts.user("user")
	res, err := b.carries.RemovePoints(r.ctx, r.actor, staffID, opts.int("amount"))
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf(
		"Removed **%d** points from <@%s>. New total: %d.", res.Removed, staffID, res.NewTotal))
}

func (b *Bot) cmdReplaceCarrier(r *request, data discordgo.ApplicationCommandInteractionData) error {
	opts := optionsOf(data)
	res, err := b.carries.ReplaceCarrier(r.ctx, r.actor, service.ReplaceCarrierInput{
		TicketNumber:   opts.str("ticket"),
		OriginalID:     opts.user("original"),
		ReplacementID:  opts.user("replacement"),
		Reason:         opts.str("reason"),
		PointsToDeduct: opts.int("points"),
	})
	if err != nil {
		return err
	}
	return replyText(r.responder, r.interaction, fmt.Sprintf(
		"Carrier replaced. Deducted %d points (%d → %d).", res.Deducted, res.PreviousPoints, res.NewPoints))
}

func (b *Bot) cmdChart(r *request, data discordgo.ApplicationCommandInteractionData) error {
	carryType := optionsOf(data).str("carry_type")
	options, err := b.carries.ValidOptions(carryType)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("```\n")
	fmt.Fprintf(&sb, "%-16s %4s %4s\n", "Floor/Tier", "S", "S+")
	for _, opt := range options {
		fmt.Fprintf(&sb, "%-16s %4d %4d\n", opt,
			service.ComputePoints(carryType, opt, string(domain.GradeS), 1),
			service.ComputePoints(carryType, opt, string(domain.GradeSPlus), 1))
	}
	sb.WriteString("```")
	return replyMessage(r.responder, r.interaction, platform.Message{Embed: &platform.Embed{
		Title:       fmt.Sprintf("📊 %s points per run", capitalize(carryType)),
		Description: sb.String(),
		Color:       0x3498DB,
	}})
}

func (b *Bot) cmdMyTickets(r *request, _ discordgo.ApplicationCommandInteractionData) error {
	tickets, err := b.tickets.ListUserTickets(r.ctx, r.actor.ID, 10)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return replyText(r.responder, r.interaction, "You have no tickets yet.")
	}
	var sb strings.Builder
	for _, t := range tickets {
		fmt.Fprintf(&sb, "#%s %s: %s (opened %s)\n", t.Number, t.Category, t.Status, t.CreatedAt.Format("2006-01-02"))
	}
	return replyText(r.responder, r.interaction, sb.String())
}

func (b *Bot) cmdTicketHistory(r *request, data discordgo.ApplicationCommandInteractionData) error {
	number := optionsOf(data).str("ticket")
	history, err := b.tickets.ListHistory(r.ctx, r.actor, number)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return replyText(r.responder, r.interaction, "No history recorded for this ticket.")
	}
	var sb strings.Builder
	for _, h := range history {
		sb.WriteString(h.Summary())
		sb.WriteByte('\n')
	}
	return replyText(r.responder, r.interaction, sb.String())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
