package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/platform/platformtest"
	"github.com/carrydesk/carry-desk/internal/worker"
)

var _ = Describe("ChannelReaper", func() {
	var (
		ctx    context.Context
		fake   *platformtest.Fake
		clk    *clock.FakeClock
		reaper *worker.ChannelReaper
		ch     platform.Channel
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = platformtest.New()
		clk = clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		reaper = worker.NewChannelReaper(fake, clk, 5*time.Second, nil)

		var err error
		ch, err = fake.CreateTicketChannel(ctx, platform.ChannelSpec{Name: "ticket-1"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("deletes the channel only after the grace period", func() {
		Expect(reaper.Schedule(ch.ID, "1")).To(BeTrue())

		clk.Advance(4 * time.Second)
		Expect(fake.Deleted()).To(BeEmpty())

		clk.Advance(time.Second)
		Expect(fake.Deleted()).To(Equal([]string{ch.ID}))
		Expect(fake.ChannelCount()).To(Equal(0))
		Expect(reaper.Pending()).To(Equal(0))
	})

	It("queues a channel once", func() {
		Expect(reaper.Schedule(ch.ID, "1")).To(BeTrue())
		Expect(reaper.Schedule(ch.ID, "1")).To(BeFalse())

		clk.Advance(5 * time.Second)
		Expect(fake.Deleted()).To(HaveLen(1))
	})

	It("tolerates channels removed out of band", func() {
		fake.Vanish(ch.ID)
		Expect(reaper.Schedule(ch.ID, "1")).To(BeTrue())
		clk.Advance(5 * time.Second)
		Expect(fake.Deleted()).To(Equal([]string{ch.ID}))
		Expect(reaper.Pending()).To(Equal(0))
	})

	It("allows rescheduling after a failed delete", func() {
		fake.FailDelete = errors.New("rate limited")
		Expect(reaper.Schedule(ch.ID, "1")).To(BeTrue())
		clk.Advance(5 * time.Second)

		fake.FailDelete = nil
		Expect(reaper.Schedule(ch.ID, "1")).To(BeTrue())
		clk.Advance(5 * time.Second)
		Expect(fake.ChannelCount()).To(Equal(0))
	})

	It("cancels queued deletions on shutdown", func() {
		Expect(reaper.Schedule(ch.ID, "1")).To(BeTrue())
		Expect(reaper.Shutdown(ctx)).To(Succeed())

		clk.Advance(time.Minute)
		Expect(fake.Deleted()).To(BeEmpty())
		Expect(reaper.Pending()).To(Equal(0))
	})

	It("ignores empty channel IDs", func() {
		Expect(reaper.Schedule("", "1")).To(BeFalse())
	})
})

var _ = Describe("Background", func() {
	It("stops cleanly without workers", func() {
		bg := worker.NewBackground(nil, nil, nil)
		bg.Start()
		Expect(bg.Stop(context.Background())).To(Succeed())
	})

	It("cancels the reaper queue on stop", func() {
		fake := platformtest.New()
		clk := clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		reaper := worker.NewChannelReaper(fake, clk, 5*time.Second, nil)
		Expect(reaper.Schedule("chan-9", "9")).To(BeTrue())

		Expect(worker.NewBackground(nil, reaper, nil).Stop(context.Background())).To(Succeed())
		Expect(reaper.Pending()).To(Equal(0))
	})
})
