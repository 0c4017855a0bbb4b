package bot_test

import (
	"github.com/bwmarrin/discordgo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/auth"
	"github.com/carrydesk/carry-desk/internal/bot"
	"github.com/carrydesk/carry-desk/internal/domain"
)

var _ = Describe("Bot", func() {
	var (
		h         *harness
		responder *fakeResponder
		customer  *discordgo.Member
		staff     *discordgo.Member
	)

	BeforeEach(func() {
		h = newHarness()
		responder = &fakeResponder{}
		customer = member("u-customer")
		staff = member("u-staff", roleStaff)
	})

	openTicket := func() {
		h.bot.Handle(h.ctx, responder, modal(customer, "ticket_details:Dungeon Carry", map[string]string{
			"ign":      "foo",
			"floor":    "Floor 7",
			"quantity": "2",
		}))
	}

	Describe("ticket panel", func() {
		It("opens the details form for the chosen category", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "ticket_open:Dungeon Carry"))

			resp := responder.last()
			Expect(resp.Type).To(Equal(discordgo.InteractionResponseModal))
			Expect(resp.Data.CustomID).To(Equal("ticket_details:Dungeon Carry"))
			Expect(resp.Data.Title).To(Equal("🏰 Dungeon Carry Request"))
			Expect(resp.Data.Components).To(HaveLen(4))
		})

		It("asks for the slayer and tier on slayer tickets", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "ticket_open:Slayer Carry"))

			resp := responder.last()
			Expect(resp.Data.Components).To(HaveLen(5))
			row := resp.Data.Components[2].(discordgo.ActionsRow)
			Expect(row.Components[0].(discordgo.TextInput).CustomID).To(Equal("tier"))
		})

		It("keeps a single question for support tickets", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "ticket_open:Support Tickets"))
			Expect(responder.last().Data.Components).To(HaveLen(1))
		})

		It("creates the ticket from the submitted form", func() {
			openTicket()

			Expect(responder.lastText()).To(ContainSubstring("Ticket #1 created: <#chan-1>"))
			Expect(responder.last().Data.Flags).To(Equal(discordgo.MessageFlagsEphemeral))
			ch, ok := h.platform.Channel("chan-1")
			Expect(ok).To(BeTrue())
			Expect(ch.Access).To(HaveKeyWithValue("u-customer", true))

			ticket, err := h.tickets.Get(h.ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ticket.Details).To(Equal("**🏰 Dungeon Carry Request**\n" +
				"**In-Game Name:** foo\n" +
				"**Dungeon Floor:** Floor 7\n" +
				"**Quantity:** 2\n" +
				"**Additional Notes:** None"))
		})

		It("refuses a form with a missing answer", func() {
			h.bot.Handle(h.ctx, responder, modal(customer, "ticket_details:Slayer Carry", map[string]string{
				"ign":      "foo",
				"slayer":   "Voidgloom Seraph",
				"quantity": "1",
			}))

			Expect(responder.lastText()).To(HavePrefix("❌ "))
			Expect(responder.lastText()).To(ContainSubstring("Missing: Tier"))
			_, ok := h.platform.Channel("chan-1")
			Expect(ok).To(BeFalse())
		})

		It("lists valid categories when the category is unknown", func() {
			h.bot.Handle(h.ctx, responder, modal(customer, "ticket_details:Fishing", map[string]string{"details": "x"}))

			Expect(responder.lastText()).To(HavePrefix("❌ "))
			Expect(responder.lastText()).To(ContainSubstring("Valid options: Dungeon Carry, Slayer Carry"))
		})

		It("restricts the panel command to admins", func() {
			h.bot.Handle(h.ctx, responder, command(staff, "ticket_panel"))
			Expect(responder.lastText()).To(ContainSubstring("permission"))

			h.bot.Handle(h.ctx, responder, command(member("u-admin", roleAdmin), "ticket_panel"))
			Expect(responder.lastText()).To(Equal("Ticket panel posted."))
			posted := h.platform.SentTo("chan-panel")
			Expect(posted).To(HaveLen(1))
			Expect(posted[0].Buttons).To(HaveLen(2))
		})
	})

	Describe("claims", func() {
		BeforeEach(openTicket)

		It("rejects customers", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "ticket_claim:1"))
			Expect(responder.lastText()).To(HavePrefix("❌ "))
		})

		It("offers an unclaim control to the claimant", func() {
			h.bot.Handle(h.ctx, responder, button(staff, "ticket_claim:1"))

			Expect(responder.lastText()).To(ContainSubstring("You claimed ticket #1"))
			row, ok := responder.last().Data.Components[0].(discordgo.ActionsRow)
			Expect(ok).To(BeTrue())
			btn, ok := row.Components[0].(discordgo.Button)
			Expect(ok).To(BeTrue())
			Expect(btn.CustomID).To(Equal("ticket_unclaim:1"))
		})

		It("resolves roles for direct message interactions", func() {
			h.platform.SetRoles("u-dm-staff", roleStaff)
			i := button(nil, "ticket_claim:1")
			i.User = &discordgo.User{ID: "u-dm-staff", Username: "dm"}

			h.bot.Handle(h.ctx, responder, i)
			Expect(responder.lastText()).To(ContainSubstring("You claimed ticket #1"))
		})
	})

	Describe("priority", func() {
		BeforeEach(openTicket)

		It("applies once and reports the current value afterwards", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "priority_set:1:High"))
			Expect(responder.lastText()).To(ContainSubstring("Priority set to **High**"))

			h.bot.Handle(h.ctx, responder, button(customer, "priority_set:1:Low"))
			Expect(responder.lastText()).To(ContainSubstring("Current priority: 🟠 High"))

			ticket, err := h.tickets.Get(h.ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ticket.Priority).To(Equal(domain.TicketPriorityHigh))
		})

		It("rejects unknown priorities", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "priority_set:1:Extreme"))
			Expect(responder.lastText()).To(ContainSubstring("unknown priority"))
		})
	})

	Describe("closing", func() {
		BeforeEach(openTicket)

		It("checks permissions before showing the form", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "ticket_close:1"))
			Expect(responder.last().Type).To(Equal(discordgo.InteractionResponseChannelMessageWithSource))

			h.bot.Handle(h.ctx, responder, button(staff, "ticket_close:1"))
			Expect(responder.last().Type).To(Equal(discordgo.InteractionResponseModal))
			Expect(responder.last().Data.CustomID).To(Equal("close_reason:1"))
		})

		It("defers and follows up with the outcome", func() {
			h.bot.Handle(h.ctx, responder, modal(staff, "close_reason:1", map[string]string{"reason": "done"}))

			Expect(responder.last().Type).To(Equal(discordgo.InteractionResponseDeferredChannelMessageWithSource))
			Expect(responder.followups).To(HaveLen(1))
			Expect(responder.followups[0].Content).To(ContainSubstring("Ticket #1 closed. Transcript saved."))
		})

		It("reports errors through the follow-up once deferred", func() {
			h.bot.Handle(h.ctx, responder, modal(staff, "close_reason:1", nil))
			h.bot.Handle(h.ctx, responder, modal(staff, "close_reason:1", nil))

			Expect(responder.followups).To(HaveLen(2))
			Expect(responder.followups[1].Content).To(HavePrefix("❌ "))
		})
	})

	Describe("feedback", func() {
		It("rejects non-numeric ratings", func() {
			openTicket()
			h.bot.Handle(h.ctx, responder, modal(customer, "feedback_submit:1", map[string]string{
				"rating":   "great",
				"feedback": "thanks",
			}))
			Expect(responder.lastText()).To(ContainSubstring("rating must be between 1 and 5"))
		})

		It("opens a three field form", func() {
			h.bot.Handle(h.ctx, responder, button(customer, "feedback_open:7"))
			Expect(responder.last().Data.CustomID).To(Equal("feedback_submit:7"))
			Expect(responder.last().Data.Components).To(HaveLen(3))
		})
	})

	Describe("commands", func() {
		It("submits a carry report with numeric options", func() {
			h.bot.Handle(h.ctx, responder, command(staff, "carried",
				option("staff", "u-staff"),
				option("runs", float64(2)),
				option("carry_type", "dungeon"),
				option("floor_or_tier", "f7"),
				option("grade", "s+"),
			))
			Expect(responder.lastText()).To(ContainSubstring("= **28** points"))
		})

		It("renders the chart for a carry type", func() {
			h.bot.Handle(h.ctx, responder, command(staff, "chart", option("carry_type", "slayer")))
			embeds := responder.last().Data.Embeds
			Expect(embeds).To(HaveLen(1))
			Expect(embeds[0].Title).To(ContainSubstring("Slayer"))
			Expect(embeds[0].Description).To(ContainSubstring("voidgloom t4"))
		})

		It("publishes the full command set", func() {
			names := make([]string, 0)
			for _, c := range bot.Commands() {
				names = append(names, c.Name)
			}
			Expect(names).To(ContainElements("ticket_panel", "carried", "leaderboard", "replace_carrier", "chart"))
		})
	})

	It("answers controls nobody handles", func() {
		h.bot.Handle(h.ctx, responder, button(customer, "mystery:1"))
		Expect(responder.lastText()).To(Equal("This control is no longer available."))
	})

	It("recovers from handler panics", func() {
		// staff passes the capability check, so Claim reaches the missing ticket service
		broken := bot.New(bot.Dependencies{
			Roles: auth.NewCapabilityResolver([]string{roleStaff}, nil, nil, nil),
		})
		broken.Handle(h.ctx, responder, button(staff, "ticket_claim:1"))
		Expect(responder.lastText()).To(Equal("Something went wrong while processing your request."))
	})
})
