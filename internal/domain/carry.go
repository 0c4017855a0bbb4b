package domain

import (
	"strings"
	"time"
)

// CarryType distinguishes dungeon runs from slayer bosses.
type CarryType string

const (
	CarryTypeDungeon CarryType = "dungeon"
	CarryTypeSlayer  CarryType = "slayer"
)

// ParseCarryType maps free text onto a carry type.
func ParseCarryType(raw string) (CarryType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dungeon":
		return CarryTypeDungeon, true
	case "slayer":
		return CarryTypeSlayer, true
	default:
		return "", false
	}
}

// Grade is the run score the carry was completed with.
type Grade string

const (
	GradeS     Grade = "s"
	GradeSPlus Grade = "s+"
)

// ParseGrade maps free text onto a grade.
func ParseGrade(raw string) (Grade, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s":
		return GradeS, true
	case "s+", "splus":
		return GradeSPlus, true
	default:
		return "", false
	}
}

// PendingCarry is a carry report awaiting manager approval. It is removed
// exactly once, by either approval or decline.
type PendingCarry struct {
	ID            string    `json:"id"`
	StaffID       string    `json:"staff_id"`
	StaffName     string    `json:"staff_name"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	UserCarriedID string    `json:"user_carried_id,omitempty"`
	Runs          int       `json:"runs"`
	CarryType     CarryType `json:"carry_type"`
	FloorOrTier   string    `json:"floor_or_tier"`
	Grade         Grade     `json:"grade"`
	Points        int       `json:"points"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerEntry is one staff member's point total. Totals are never
// negative and entries at zero are removed.
type LedgerEntry struct {
	StaffID string
	Points  int
}
