package memory_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
)

var _ = Describe("TicketRepository", func() {
	var (
		repo *memory.TicketRepository
		ctx  context.Context
		now  time.Time
	)

	BeforeEach(func() {
		repo = memory.NewTicketRepository()
		ctx = context.Background()
		now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	})

	newTicket := func(number, creator string) *domain.Ticket {
		return &domain.Ticket{
			Number:    number,
			CreatorID: creator,
			ChannelID: "chan-" + number,
			Category:  domain.CategoryDungeonCarry,
			Status:    domain.TicketStatusOpen,
			CreatedAt: now,
		}
	}

	Describe("NextTicketNumber", func() {
		It("starts at 1 on an empty store", func() {
			n, err := repo.NextTicketNumber(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal("1"))
		})

		It("stays above the largest stored number", func() {
			Expect(repo.Create(ctx, newTicket("41", "u1"))).To(Succeed())
			n, err := repo.NextTicketNumber(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal("42"))
		})

		It("never repeats a value under concurrent callers", func() {
			const callers = 50
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				numbers []string
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					n, err := repo.NextTicketNumber(ctx)
					if err != nil {
						return
					}
					mu.Lock()
					numbers = append(numbers, n)
					mu.Unlock()
				}()
			}
			wg.Wait()

			Expect(numbers).To(HaveLen(callers))
			seen := map[string]bool{}
			for _, n := range numbers {
				Expect(seen[n]).To(BeFalse(), "duplicate number %s", n)
				seen[n] = true
			}
		})

		It("issues increasing values interleaved with creations", func() {
			var last int64
			for i := 0; i < 10; i++ {
				n, err := repo.NextTicketNumber(ctx)
				Expect(err).ToNot(HaveOccurred())
				v, _ := strconv.ParseInt(n, 10, 64)
				Expect(v).To(BeNumerically(">", last))
				last = v
				if i%2 == 0 {
					Expect(repo.Create(ctx, newTicket(n, "creator-"+n))).To(Succeed())
				}
			}
		})
	})

	Describe("open ticket lookups", func() {
		It("tracks the open ticket and its channel", func() {
			Expect(repo.Create(ctx, newTicket("1", "u1"))).To(Succeed())

			open, err := repo.HasOpenTicket(ctx, "u1")
			Expect(err).ToNot(HaveOccurred())
			Expect(open).To(BeTrue())

			channel, ok, err := repo.OpenTicketChannel(ctx, "u1")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(channel).To(Equal("chan-1"))

			Expect(repo.Close(ctx, "1", now)).To(Succeed())
			open, err = repo.HasOpenTicket(ctx, "u1")
			Expect(err).ToNot(HaveOccurred())
			Expect(open).To(BeFalse())
			_, ok, err = repo.OpenTicketChannel(ctx, "u1")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("refuses a second open ticket for the same creator", func() {
			Expect(repo.Create(ctx, newTicket("1", "u1"))).To(Succeed())
			err := repo.Create(ctx, newTicket("2", "u1"))
			Expect(errors.Is(err, repository.ErrOpenTicketExists)).To(BeTrue())
		})
	})

	Describe("claims", func() {
		It("defaults to Unclaimed and can be cleared", func() {
			Expect(repo.Create(ctx, newTicket("1", "u1"))).To(Succeed())
			claim, err := repo.GetClaim(ctx, "1")
			Expect(err).ToNot(HaveOccurred())
			Expect(claim).To(Equal(domain.Unclaimed))

			Expect(repo.SetClaim(ctx, "1", "S")).To(Succeed())
			Expect(repo.GetClaim(ctx, "1")).To(Equal("S"))

			Expect(repo.SetClaim(ctx, "1", "")).To(Succeed())
			Expect(repo.GetClaim(ctx, "1")).To(Equal(domain.Unclaimed))
		})

		It("reports missing tickets", func() {
			_, err := repo.GetClaim(ctx, "99")
			Expect(errors.Is(err, repository.ErrTicketNotFound)).To(BeTrue())
		})
	})

	Describe("SetPriorityOnce", func() {
		BeforeEach(func() {
			Expect(repo.Create(ctx, newTicket("1", "u1"))).To(Succeed())
		})

		It("keeps the first value", func() {
			applied, current, err := repo.SetPriorityOnce(ctx, "1", domain.TicketPriorityHigh)
			Expect(err).ToNot(HaveOccurred())
			Expect(applied).To(BeTrue())
			Expect(current).To(Equal(domain.TicketPriorityHigh))

			applied, current, err = repo.SetPriorityOnce(ctx, "1", domain.TicketPriorityLow)
			Expect(err).ToNot(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(current).To(Equal(domain.TicketPriorityHigh))

			ticket, err := repo.Get(ctx, "1")
			Expect(err).ToNot(HaveOccurred())
			Expect(ticket.Priority).To(Equal(domain.TicketPriorityHigh))
		})

		It("has exactly one winner under concurrency", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				winners []domain.TicketPriority
				seen    []domain.TicketPriority
			)
			for i := 0; i < 40; i++ {
				p := domain.Priorities[i%len(domain.Priorities)]
				wg.Add(1)
				go func() {
					defer wg.Done()
					applied, current, err := repo.SetPriorityOnce(ctx, "1", p)
					if err != nil {
						return
					}
					mu.Lock()
					defer mu.Unlock()
					if applied {
						winners = append(winners, p)
					}
					seen = append(seen, current)
				}()
			}
			wg.Wait()

			Expect(winners).To(HaveLen(1))
			Expect(seen).To(HaveLen(40))
			for _, v := range seen {
				Expect(v).To(Equal(winners[0]))
			}
		})
	})

	Describe("Close", func() {
		It("is a conflict the second time", func() {
			Expect(repo.Create(ctx, newTicket("1", "u1"))).To(Succeed())
			Expect(repo.Close(ctx, "1", now)).To(Succeed())

			err := repo.Close(ctx, "1", now.Add(time.Minute))
			Expect(errors.Is(err, repository.ErrTicketAlreadyClosed)).To(BeTrue())

			ticket, err := repo.Get(ctx, "1")
			Expect(err).ToNot(HaveOccurred())
			Expect(ticket.Status).To(Equal(domain.TicketStatusClosed))
			Expect(*ticket.ClosedAt).To(Equal(now))
		})

		It("reports unknown tickets", func() {
			Expect(errors.Is(repo.Close(ctx, "7", now), repository.ErrTicketNotFound)).To(BeTrue())
		})
	})

	It("lists a creator's tickets newest first", func() {
		Expect(repo.Create(ctx, newTicket("1", "u1"))).To(Succeed())
		Expect(repo.Close(ctx, "1", now)).To(Succeed())
		Expect(repo.Create(ctx, newTicket("10", "u1"))).To(Succeed())
		Expect(repo.Create(ctx, newTicket("2", "u2"))).To(Succeed())

		tickets, err := repo.ListByCreator(ctx, "u1", 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(tickets).To(HaveLen(2))
		Expect(tickets[0].Number).To(Equal("10"))
		Expect(tickets[1].Number).To(Equal("1"))
	})
})
