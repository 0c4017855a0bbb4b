package service_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/service"
)

var _ = Describe("ComputePoints", func() {
	DescribeTable("uses the chart values",
		func(carryType, floorOrTier, grade string, runs, expected int) {
			Expect(service.ComputePoints(carryType, floorOrTier, grade, runs)).To(Equal(expected))
		},
		Entry("f7 s+ twice", "dungeon", "f7", "s+", 2, 28),
		Entry("entrance s", "dungeon", "entrance", "s", 1, 1),
		Entry("m7 s+", "dungeon", "M7", "S+", 1, 24),
		Entry("voidgloom t4 s+", "slayer", "voidgloom t4", "s+", 1, 16),
		Entry("blaze t2 s underscore", "slayer", "blaze_t2", "s", 2, 20),
		Entry("unknown floor", "dungeon", "f8", "s", 1, 0),
		Entry("unknown slayer", "slayer", "zombie t4", "s", 1, 0),
		Entry("slayer without tier", "slayer", "sven", "s", 1, 0),
		Entry("zero runs", "dungeon", "f7", "s", 0, 0),
		Entry("unknown grade", "dungeon", "f7", "a", 1, 0),
	)

	It("lists options per carry type", func() {
		Expect(service.ValidOptions(domain.CarryTypeDungeon)).To(HaveLen(15))
		Expect(service.ValidOptions(domain.CarryTypeSlayer)).To(ContainElements("revenant t4", "blaze t2", "voidgloom t3"))
	})
})

var _ = Describe("ControlID", func() {
	It("round trips actions and arguments", func() {
		id := service.ControlID(service.ActionPrioritySet, "12", "Urgent")
		Expect(id).To(Equal("priority_set:12:Urgent"))
		action, args := service.ParseControlID(id)
		Expect(action).To(Equal(service.ActionPrioritySet))
		Expect(args).To(Equal([]string{"12", "Urgent"}))
	})

	It("renders the priority picker", func() {
		menu := service.PriorityMenu("3")
		Expect(menu.Buttons).To(HaveLen(4))
		Expect(menu.Buttons[3].CustomID).To(Equal("priority_set:3:Urgent"))
	})
})
