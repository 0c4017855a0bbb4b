package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/config"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
	"github.com/carrydesk/carry-desk/internal/service"
	"github.com/carrydesk/carry-desk/internal/transcript"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// failingCreate rejects every insert after the number was allocated.
type failingCreate struct {
	repository.TicketRepository
}

func (failingCreate) Create(context.Context, *domain.Ticket) error {
	return errors.New("connection reset")
}

var _ = Describe("TicketService", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	Describe("CreateTicket", func() {
		It("opens a ticket with its own channel and rejects a second one", func() {
			ticket := h.openTicket(customer)
			Expect(ticket.Number).To(Equal("1"))
			Expect(ticket.Status).To(Equal(domain.TicketStatusOpen))
			Expect(ticket.CreatorID).To(Equal(customer.ID))
			Expect(ticket.Details).To(Equal("IGN: foo"))

			has, err := h.tickets.HasOpenTicket(h.ctx, customer.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeTrue())

			ch, ok := h.platform.Channel(ticket.ChannelID)
			Expect(ok).To(BeTrue())
			Expect(ch.Name).To(Equal("ticket-1"))
			Expect(ch.Access).To(HaveKeyWithValue(customer.ID, true))
			Expect(ch.Spec.RoleIDs).To(ConsistOf("role-staff"))
			Expect(ch.Spec.CategoryName).To(Equal("Dungeon Carry"))

			sent := h.platform.SentTo(ticket.ChannelID)
			Expect(sent).To(HaveLen(2))
			Expect(sent[0].Content).To(Equal("<@&role-carrier>"))
			Expect(sent[1].Embed).NotTo(BeNil())
			Expect(sent[1].Buttons).To(HaveLen(4))
			Expect(sent[1].Buttons[0].CustomID).To(Equal("ticket_claim:1"))

			_, err = h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "Slayer Carry"})
			Expect(err).To(MatchError(service.ErrDuplicateTicket))
			Expect(h.platform.ChannelCount()).To(Equal(1))

			mine, err := h.ticketSvc.ListUserTickets(h.ctx, customer.ID, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(1))
			Expect(h.events.OfType(events.EventTicketCreated)).To(HaveLen(1))
		})

		It("rejects inactive categories", func() {
			_, err := h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "Support Tickets"})
			Expect(err).To(MatchError(service.ErrInactiveCategory))
			_, err = h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "fishing"})
			Expect(err).To(MatchError(service.ErrInactiveCategory))
			Expect(h.platform.ChannelCount()).To(BeZero())
		})

		It("accepts category names case-insensitively", func() {
			ticket, err := h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "  slayer carry "})
			Expect(err).NotTo(HaveOccurred())
			Expect(ticket.Category).To(Equal(domain.CategorySlayerCarry))
		})

		It("closes a stale ticket whose channel vanished and allows recreation", func() {
			first := h.openTicket(customer)
			h.platform.Vanish(first.ChannelID)

			second := h.openTicket(customer)
			Expect(second.Number).To(Equal("2"))

			old, err := h.tickets.Get(h.ctx, first.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(old.Status).To(Equal(domain.TicketStatusClosed))

			history, err := h.history.ListByTicket(h.ctx, first.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(history[len(history)-1].NewValue).To(HaveKeyWithValue("reason", "stale channel"))
		})

		It("leaves nothing behind when the channel cannot be created", func() {
			h.platform.FailCreate = errors.New("missing permissions")
			_, err := h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "Dungeon Carry"})
			Expect(err).To(HaveOccurred())
			Expect(apperrors.ToDomainError(err).Code).To(Equal("COLLABORATOR_FAILED"))

			has, err := h.tickets.HasOpenTicket(h.ctx, customer.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())
		})

		It("removes the channel when the record cannot be stored", func() {
			h = newHarness(withTicketRepo(failingCreate{memory.NewTicketRepository()}))
			_, err := h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "Dungeon Carry"})
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			Expect(h.platform.Deleted()).To(Equal([]string{"chan-1"}))
			Expect(h.platform.ChannelCount()).To(BeZero())
		})

		It("keeps one open ticket per creator under concurrent requests", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			created := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := h.ticketSvc.CreateTicket(h.ctx, customer, service.CreateTicketInput{Category: "Dungeon Carry"})
					if err == nil {
						mu.Lock()
						created++
						mu.Unlock()
						return
					}
					Expect(err).To(MatchError(service.ErrDuplicateTicket))
				}()
			}
			wg.Wait()
			Expect(created).To(Equal(1))
			Expect(h.platform.ChannelCount()).To(Equal(1))
		})
	})

	Describe("claims", func() {
		var ticket *domain.Ticket

		BeforeEach(func() {
			ticket = h.openTicket(customer)
		})

		It("lets only the claimant release a claim", func() {
			_, err := h.ticketSvc.Claim(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			claim, err := h.ticketSvc.GetClaim(h.ctx, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(claim).To(Equal(staff.ID))

			_, err = h.ticketSvc.Claim(h.ctx, staff2, ticket.Number)
			Expect(err).To(MatchError(service.ErrAlreadyClaimed))

			_, err = h.ticketSvc.Unclaim(h.ctx, staff2, ticket.Number)
			Expect(err).To(MatchError(service.ErrPermissionDenied))
			claim, _ = h.ticketSvc.GetClaim(h.ctx, ticket.Number)
			Expect(claim).To(Equal(staff.ID))

			_, err = h.ticketSvc.Unclaim(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			claim, _ = h.ticketSvc.GetClaim(h.ctx, ticket.Number)
			Expect(claim).To(Equal(domain.Unclaimed))
		})

		It("treats a repeated claim by the claimant as a no-op", func() {
			_, err := h.ticketSvc.Claim(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			_, err = h.ticketSvc.Claim(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.events.OfType(events.EventTicketClaimed)).To(HaveLen(1))
		})

		It("lets admins release any claim", func() {
			_, err := h.ticketSvc.Claim(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			_, err = h.ticketSvc.Unclaim(h.ctx, admin, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires staff to claim and a claim to release", func() {
			_, err := h.ticketSvc.Claim(h.ctx, customer, ticket.Number)
			Expect(err).To(MatchError(service.ErrPermissionDenied))
			_, err = h.ticketSvc.Unclaim(h.ctx, staff, ticket.Number)
			Expect(err).To(MatchError(service.ErrNotClaimed))
		})
	})

	Describe("SetPriority", func() {
		var ticket *domain.Ticket

		BeforeEach(func() {
			ticket = h.openTicket(customer)
		})

		It("applies the first priority only", func() {
			res, err := h.ticketSvc.SetPriority(h.ctx, customer, ticket.Number, domain.TicketPriorityHigh)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(service.PriorityResult{Applied: true, Current: domain.TicketPriorityHigh}))

			ch, _ := h.platform.Channel(ticket.ChannelID)
			Expect(ch.Name).To(Equal("🟠ticket-1"))

			res, err = h.ticketSvc.SetPriority(h.ctx, staff, ticket.Number, domain.TicketPriorityLow)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(service.PriorityResult{Applied: false, Current: domain.TicketPriorityHigh}))

			notices := h.platform.SentTo(priorityLog)
			Expect(notices).To(HaveLen(1))
			Expect(notices[0].Content).To(ContainSubstring("**High**"))
			Expect(notices[0].Content).To(ContainSubstring("High priority assistance needed"))
		})

		It("notifies once when several participants race", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			applied := 0
			for i, p := range []domain.TicketPriority{
				domain.TicketPriorityLow, domain.TicketPriorityMedium,
				domain.TicketPriorityHigh, domain.TicketPriorityUrgent,
				domain.TicketPriorityLow, domain.TicketPriorityUrgent,
			} {
				wg.Add(1)
				go func(i int, p domain.TicketPriority) {
					defer GinkgoRecover()
					defer wg.Done()
					actor := customer
					if i%2 == 1 {
						actor = staff
					}
					res, err := h.ticketSvc.SetPriority(h.ctx, actor, ticket.Number, p)
					Expect(err).NotTo(HaveOccurred())
					if res.Applied {
						mu.Lock()
						applied++
						mu.Unlock()
					}
				}(i, p)
			}
			wg.Wait()
			Expect(applied).To(Equal(1))
			Expect(h.platform.SentTo(priorityLog)).To(HaveLen(1))
			Expect(h.events.OfType(events.EventTicketPrioritySet)).To(HaveLen(1))
		})

		It("rejects unknown priorities", func() {
			_, err := h.ticketSvc.SetPriority(h.ctx, customer, ticket.Number, domain.TicketPriority("Critical"))
			Expect(err).To(MatchError(service.ErrInvalidPriority))
		})
	})

	Describe("CallForHelp", func() {
		var ticket *domain.Ticket

		BeforeEach(func() {
			ticket = h.openTicket(customer)
		})

		It("enforces the cooldown per ticket", func() {
			Expect(h.ticketSvc.CallForHelp(h.ctx, customer, ticket.Number)).To(Succeed())

			h.clock.Advance(time.Hour)
			err := h.ticketSvc.CallForHelp(h.ctx, staff, ticket.Number)
			Expect(err).To(MatchError(service.ErrHelpCooldown))
			Expect(apperrors.ToDomainError(err).Details).To(HaveKeyWithValue("retry_after", "1h0m0s"))

			h.clock.Advance(time.Hour)
			Expect(h.ticketSvc.CallForHelp(h.ctx, customer, ticket.Number)).To(Succeed())
			Expect(h.events.OfType(events.EventTicketHelpRequested)).To(HaveLen(2))
		})

		It("is limited to participants", func() {
			outsider := domain.Actor{ID: "u-outsider"}
			Expect(h.ticketSvc.CallForHelp(h.ctx, outsider, ticket.Number)).To(MatchError(service.ErrNotParticipant))
		})
	})

	Describe("CloseTicket", func() {
		var ticket *domain.Ticket

		BeforeEach(func() {
			ticket = h.openTicket(customer)
			base := time.Date(2025, 6, 1, 18, 5, 0, 0, time.UTC)
			h.platform.Seed(ticket.ChannelID,
				platform.HistoryMessage{AuthorName: "customer", Content: "hello", Timestamp: base},
				platform.HistoryMessage{AuthorName: "CarryBot", AuthorIsBot: true, Content: "thanks for waiting", Timestamp: base.Add(time.Second)},
				platform.HistoryMessage{AuthorName: "CarryBot", AuthorIsBot: true, HasRichContent: true, Timestamp: base.Add(2 * time.Second)},
				platform.HistoryMessage{AuthorName: "staff", HasRichContent: true, Content: "", Timestamp: base.Add(3 * time.Second)},
			)
		})

		It("stores the transcript, closes the ticket and deletes the channel after the grace delay", func() {
			res, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Transcript).To(Equal(transcript.OutcomeStored))
			Expect(res.MessageCount).To(Equal(3))
			Expect(res.Ticket.Status).To(Equal(domain.TicketStatusClosed))

			stored := h.sink.Stored()
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].ClosedBy).To(Equal("staff"))
			Expect(stored[0].ClosingReason).To(Equal("Manual closure by staff"))
			Expect(stored[0].ClaimedBy).To(Equal(domain.Unclaimed))
			Expect(stored[0].Messages).To(Equal([]domain.TranscriptMessage{
				{Author: "customer", Content: "hello", Timestamp: "2025-06-01 18:05:00"},
				{Author: "CarryBot", Content: "[Embed/File]", Timestamp: "2025-06-01 18:05:02"},
				{Author: "staff", Content: "[Embed/File]", Timestamp: "2025-06-01 18:05:03"},
			}))

			Expect(h.platform.Deleted()).To(BeEmpty())
			h.clock.Advance(5 * time.Second)
			Expect(h.platform.Deleted()).To(Equal([]string{ticket.ChannelID}))

			dms := h.platform.DMs(customer.ID)
			Expect(dms).To(HaveLen(2))
			Expect(dms[0].Buttons[0].CustomID).To(Equal("feedback_open:1"))
			Expect(h.platform.SentTo(transcriptLog)).To(HaveLen(1))

			window, err := h.fbSvc.Window(h.ctx, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(window.Deadline).To(Equal(h.clock.Now().Add(-5 * time.Second).Add(24 * time.Hour)))
		})

		It("degrades to the fallback file when the transcript API is unreachable", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			}))
			url := server.URL
			server.Close()

			fallback := persistence.NewJSONTable(filepath.Join(GinkgoT().TempDir(), "transcripts.json"))
			sink := transcript.NewSink(config.SinkConfig{BaseURL: url, Timeout: time.Second}, nil, fallback, nil, nil)
			h = newHarness(withSink(sink))
			ticket = h.openTicket(customer)

			res, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Transcript).To(Equal(transcript.OutcomeDegraded))

			docs, err := fallback.Get(ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))

			stored, err := h.tickets.Get(h.ctx, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(domain.TicketStatusClosed))

			closed := h.events.OfType(events.EventTicketClosed)
			Expect(closed).To(HaveLen(1))
			Expect(closed[0].Payload.(events.TicketClosedPayload).TranscriptDegraded).To(BeTrue())
		})

		It("closes with an empty transcript when history cannot be read", func() {
			h.platform.FailHistory = errors.New("missing access")
			res, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.MessageCount).To(BeZero())
			Expect(h.sink.Stored()[0].Messages).To(BeEmpty())
		})

		It("rejects non-staff and repeated closes", func() {
			_, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: customer})
			Expect(err).To(MatchError(service.ErrPermissionDenied))

			_, err = h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff, Reason: "done"})
			Expect(err).NotTo(HaveOccurred())
			_, err = h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
			Expect(err).To(MatchError(repository.ErrTicketAlreadyClosed))
			Expect(h.sink.Stored()).To(HaveLen(1))
		})

		It("rejects transitions on closed tickets", func() {
			_, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
			Expect(err).NotTo(HaveOccurred())

			_, err = h.ticketSvc.Claim(h.ctx, staff, ticket.Number)
			Expect(err).To(MatchError(service.ErrTicketClosed))
			_, err = h.ticketSvc.SetPriority(h.ctx, customer, ticket.Number, domain.TicketPriorityLow)
			Expect(err).To(MatchError(service.ErrTicketClosed))
		})

		It("lets the creator open a new ticket after closure", func() {
			_, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
			Expect(err).NotTo(HaveOccurred())
			next := h.openTicket(customer)
			Expect(next.Number).To(Equal("2"))
		})
	})

	Describe("ListHistory", func() {
		It("records the audit trail for staff", func() {
			ticket := h.openTicket(customer)
			_, err := h.ticketSvc.Claim(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())

			_, err = h.ticketSvc.ListHistory(h.ctx, customer, ticket.Number)
			Expect(err).To(MatchError(service.ErrPermissionDenied))

			history, err := h.ticketSvc.ListHistory(h.ctx, staff, ticket.Number)
			Expect(err).NotTo(HaveOccurred())
			var changes []domain.TicketChangeType
			for _, entry := range history {
				changes = append(changes, entry.ChangeType)
			}
			Expect(changes).To(Equal([]domain.TicketChangeType{domain.ChangeTypeCreated, domain.ChangeTypeClaim}))
		})
	})
})
