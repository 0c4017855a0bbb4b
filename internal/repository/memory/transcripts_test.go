package memory_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
)

var _ = Describe("TranscriptRepository", func() {
	var (
		repo *memory.TranscriptRepository
		ctx  context.Context
		base time.Time
	)

	BeforeEach(func() {
		repo = memory.NewTranscriptRepository()
		ctx = context.Background()
		base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	})

	save := func(id, ticket, user, category string, closed time.Time) {
		Expect(repo.Save(ctx, &domain.Transcript{
			ID:           id,
			TicketNumber: ticket,
			UserID:       user,
			Category:     category,
			ClosedAt:     closed,
			SavedAt:      closed,
			Messages:     []domain.TranscriptMessage{{Author: "u", Content: "hi"}},
		})).To(Succeed())
	}

	It("lists summaries newest closed first", func() {
		save("a", "1", "u1", "Dungeon Carry", base)
		save("b", "2", "u1", "Slayer Carry", base.Add(time.Hour))
		save("c", "3", "u2", "Slayer Carry", base.Add(2*time.Hour))

		list, err := repo.ListByUser(ctx, "u1")
		Expect(err).ToNot(HaveOccurred())
		Expect(list).To(HaveLen(2))
		Expect(list[0].ID).To(Equal("b"))
		Expect(list[0].Messages).To(BeNil())
	})

	It("finds a transcript only for its owner", func() {
		save("a", "1", "u1", "Dungeon Carry", base)

		t, err := repo.Get(ctx, "1", "u1")
		Expect(err).ToNot(HaveOccurred())
		Expect(t.Messages).To(HaveLen(1))

		_, err = repo.Get(ctx, "1", "u2")
		Expect(errors.Is(err, repository.ErrTranscriptNotFound)).To(BeTrue())
	})

	It("caps searches at fifty results", func() {
		for i := 0; i < 60; i++ {
			save("id", "n", "u1", "Dungeon Carry", base.Add(time.Duration(i)*time.Minute))
		}
		list, err := repo.Search(ctx, domain.TranscriptFilter{Category: "Dungeon Carry"})
		Expect(err).ToNot(HaveOccurred())
		Expect(list).To(HaveLen(repository.MaxSearchResults))
	})

	It("aggregates user and global statistics", func() {
		save("a", "1", "u1", "Dungeon Carry", base.Add(-40*24*time.Hour))
		save("b", "2", "u1", "Slayer Carry", base)
		save("c", "3", "u2", "Slayer Carry", base)

		user, err := repo.UserStats(ctx, "u1")
		Expect(err).ToNot(HaveOccurred())
		Expect(user.TotalTickets).To(Equal(2))
		Expect(user.TranscriptCount).To(Equal(2))
		Expect(*user.LastTicketDate).To(Equal(base))

		stats, err := repo.Stats(ctx, base.Add(-30*24*time.Hour))
		Expect(err).ToNot(HaveOccurred())
		Expect(stats.TotalTranscripts).To(Equal(3))
		Expect(stats.TotalUsers).To(Equal(2))
		Expect(stats.RecentActivity).To(Equal(2))
		Expect(stats.Categories).To(Equal([]domain.CategoryCount{
			{Category: "Slayer Carry", Count: 2},
			{Category: "Dungeon Carry", Count: 1},
		}))
	})
})
