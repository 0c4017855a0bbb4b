package service_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/service"
)

var errNoDMs = errors.New("cannot send messages to this user")

var _ = Describe("FeedbackService", func() {
	var (
		h      *harness
		ticket *domain.Ticket
	)

	BeforeEach(func() {
		h = newHarness()
		ticket = h.openTicket(customer)
		_, err := h.ticketSvc.CloseTicket(h.ctx, service.CloseInput{Number: ticket.Number, Actor: staff})
		Expect(err).NotTo(HaveOccurred())
		h.clock.Advance(5 * time.Second)
	})

	submit := func(rating int, text string) (*domain.Feedback, error) {
		return h.fbSvc.Submit(h.ctx, service.SubmitFeedbackInput{
			TicketNumber: ticket.Number,
			UserID:       customer.ID,
			Rating:       rating,
			Feedback:     text,
		})
	}

	It("accepts one submission per ticket", func() {
		fb, err := submit(5, "great")
		Expect(err).NotTo(HaveOccurred())
		Expect(fb.Rating).To(Equal(5))

		_, err = submit(1, "changed my mind")
		Expect(err).To(MatchError(service.ErrAlreadySubmitted))

		stored, err := h.fbSvc.Get(h.ctx, ticket.Number)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Rating).To(Equal(5))
		Expect(stored.Feedback).To(Equal("great"))

		posted := h.platform.SentTo(feedbackLog)
		Expect(posted).To(HaveLen(1))
		submitted := h.events.OfType(events.EventFeedbackSubmitted)
		Expect(submitted).To(HaveLen(1))
		Expect(submitted[0].Payload.(events.FeedbackSubmittedPayload).ClosedBy).To(Equal("staff"))
	})

	It("rejects submissions after the window expired and stores nothing", func() {
		h.clock.Advance(24 * time.Hour)
		_, err := submit(4, "late")
		Expect(err).To(MatchError(service.ErrFeedbackWindowClosed))

		stored, err := h.fbSvc.Get(h.ctx, ticket.Number)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(BeNil())
	})

	It("only accepts ratings from the creator", func() {
		_, err := h.fbSvc.Submit(h.ctx, service.SubmitFeedbackInput{
			TicketNumber: ticket.Number,
			UserID:       staff.ID,
			Rating:       5,
			Feedback:     "self review",
		})
		Expect(err).To(MatchError(service.ErrNotTicketCreator))
	})

	DescribeTable("validates the form",
		func(rating int, text string, expected error) {
			_, err := submit(rating, text)
			Expect(err).To(MatchError(expected))
		},
		Entry("rating too low", 0, "ok", service.ErrInvalidRating),
		Entry("rating too high", 6, "ok", service.ErrInvalidRating),
		Entry("blank feedback", 3, "   ", service.ErrFeedbackRequired),
	)

	It("closes a ticket that is still open when feedback arrives", func() {
		other := domain.Actor{ID: "u-other", Name: "other"}
		open := h.openTicket(other)
		Expect(h.fbSvc.Request(h.ctx, open.Number, other.ID, "staff", time.Hour)).To(Succeed())

		_, err := h.fbSvc.Submit(h.ctx, service.SubmitFeedbackInput{
			TicketNumber: open.Number,
			UserID:       other.ID,
			Rating:       4,
			Feedback:     "quick carry",
		})
		Expect(err).NotTo(HaveOccurred())

		stored, err := h.tickets.Get(h.ctx, open.Number)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(domain.TicketStatusClosed))
		Expect(h.sink.Stored()[len(h.sink.Stored())-1].ClosingReason).To(Equal("Closed after feedback"))

		h.clock.Advance(5 * time.Second)
		Expect(h.platform.Deleted()).To(ContainElement(open.ChannelID))
	})

	It("keeps the window open when the prompt cannot be delivered", func() {
		other := domain.Actor{ID: "u-other", Name: "other"}
		open := h.openTicket(other)
		h.platform.FailDM = errNoDMs
		Expect(h.fbSvc.Request(h.ctx, open.Number, other.ID, "staff", time.Hour)).To(Succeed())

		window, err := h.fbSvc.Window(h.ctx, open.Number)
		Expect(err).NotTo(HaveOccurred())
		Expect(window.ClosedBy).To(Equal("staff"))
	})
})
