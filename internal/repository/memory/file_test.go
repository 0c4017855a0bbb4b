package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
)

var _ = Describe("file backed stores", func() {
	var (
		ctx context.Context
		dir string
		now time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	})

	table := func(name string) *persistence.JSONTable {
		return persistence.NewJSONTable(filepath.Join(dir, name))
	}

	It("restores tickets and keeps numbering after a restart", func() {
		repo, err := memory.NewFileTicketRepository(table("tickets.json"))
		Expect(err).NotTo(HaveOccurred())

		number, err := repo.NextTicketNumber(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, &domain.Ticket{
			Number: number, CreatorID: "u1", ChannelID: "chan-1",
			Category: domain.CategoryDungeonCarry, Status: domain.TicketStatusOpen,
			Details: "IGN: foo", CreatedAt: now,
		})).To(Succeed())
		Expect(repo.SetClaim(ctx, number, "s1")).To(Succeed())
		_, _, err = repo.SetPriorityOnce(ctx, number, domain.TicketPriorityHigh)
		Expect(err).NotTo(HaveOccurred())

		reopened, err := memory.NewFileTicketRepository(table("tickets.json"))
		Expect(err).NotTo(HaveOccurred())
		ticket, err := reopened.Get(ctx, number)
		Expect(err).NotTo(HaveOccurred())
		Expect(ticket.ClaimedBy).To(Equal("s1"))
		Expect(ticket.Priority).To(Equal(domain.TicketPriorityHigh))
		Expect(ticket.Details).To(Equal("IGN: foo"))
		Expect(reopened.HasOpenTicket(ctx, "u1")).To(BeTrue())

		next, err := reopened.NextTicketNumber(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal("2"))

		Expect(reopened.Close(ctx, number, now)).To(Succeed())
		again, err := memory.NewFileTicketRepository(table("tickets.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Close(ctx, number, now)).To(MatchError(repository.ErrTicketAlreadyClosed))
		third, _ := again.NextTicketNumber(ctx)
		Expect(third).To(Equal("3"))
	})

	It("reverts a change the file could not record", func() {
		path := filepath.Join(dir, "tickets.json")
		repo, err := memory.NewFileTicketRepository(persistence.NewJSONTable(path))
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Mkdir(path, 0o755)).To(Succeed())

		err = repo.Create(ctx, &domain.Ticket{Number: "1", CreatorID: "u1", Status: domain.TicketStatusOpen, CreatedAt: now})
		Expect(err).To(HaveOccurred())
		_, err = repo.Get(ctx, "1")
		Expect(err).To(MatchError(repository.ErrTicketNotFound))
	})

	It("restores the pending queue and the ledger", func() {
		repo, err := memory.NewFileCarryRepository(table("points.json"))
		Expect(err).NotTo(HaveOccurred())
		for _, id := range []string{"c1", "c2", "c3"} {
			Expect(repo.CreatePending(ctx, &domain.PendingCarry{ID: id, StaffID: "s1", Points: 14, CreatedAt: now})).To(Succeed())
		}
		_, total, err := repo.ResolvePending(ctx, "c2", nil, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(14))
		Expect(repo.AddPoints(ctx, "s2", 3)).To(Equal(3))

		reopened, err := memory.NewFileCarryRepository(table("points.json"))
		Expect(err).NotTo(HaveOccurred())
		pending, err := reopened.ListPending(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(2))
		Expect(pending[0].ID).To(Equal("c1"))
		Expect(pending[1].ID).To(Equal("c3"))

		board, err := reopened.Leaderboard(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(board).To(Equal([]domain.LedgerEntry{{StaffID: "s1", Points: 14}, {StaffID: "s2", Points: 3}}))

		_, _, err = reopened.ResolvePending(ctx, "c2", nil, true)
		Expect(err).To(MatchError(repository.ErrCarryNotFound))
	})

	It("keeps feedback write-once across restarts", func() {
		repo, err := memory.NewFileFeedbackRepository(table("feedback.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.CreateOnce(ctx, &domain.Feedback{TicketNumber: "1", UserID: "u1", Rating: 5, Feedback: "great", CreatedAt: now})).To(Succeed())

		reopened, err := memory.NewFileFeedbackRepository(table("feedback.json"))
		Expect(err).NotTo(HaveOccurred())
		fb, err := reopened.Get(ctx, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(fb.Rating).To(Equal(5))
		Expect(reopened.CreateOnce(ctx, &domain.Feedback{TicketNumber: "1", UserID: "u1", Rating: 1})).
			To(MatchError(repository.ErrFeedbackExists))
	})

	It("appends history per ticket", func() {
		repo, err := memory.NewFileTicketHistoryRepository(table("ticket_history.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, domain.NewTicketHistory("h1", "1", "u1", domain.ChangeTypeCreated, nil, map[string]any{"category": "Dungeon Carry"}, now))).To(Succeed())
		Expect(repo.Create(ctx, domain.NewTicketHistory("h2", "2", "u2", domain.ChangeTypeCreated, nil, nil, now))).To(Succeed())
		Expect(repo.Create(ctx, domain.NewTicketHistory("h3", "1", "s1", domain.ChangeTypeClaim, nil, map[string]any{"claimed_by": "s1"}, now))).To(Succeed())

		reopened, err := memory.NewFileTicketHistoryRepository(table("ticket_history.json"))
		Expect(err).NotTo(HaveOccurred())
		entries, err := reopened.ListByTicket(ctx, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].ID).To(Equal("h1"))
		Expect(entries[1].NewValue).To(HaveKeyWithValue("claimed_by", "s1"))
	})
})
