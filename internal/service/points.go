package service

import (
	"strings"

	"github.com/carrydesk/carry-desk/internal/domain"
)

type gradePoints map[domain.Grade]int

var dungeonFloors = []string{
	"entrance", "f1", "f2", "f3", "f4", "f5", "f6", "f7",
	"m1", "m2", "m3", "m4", "m5", "m6", "m7",
}

var dungeonPoints = map[string]gradePoints{
	"entrance": {domain.GradeS: 1, domain.GradeSPlus: 2},
	"f1":       {domain.GradeS: 2, domain.GradeSPlus: 3},
	"f2":       {domain.GradeS: 3, domain.GradeSPlus: 4},
	"f3":       {domain.GradeS: 4, domain.GradeSPlus: 5},
	"f4":       {domain.GradeS: 5, domain.GradeSPlus: 6},
	"f5":       {domain.GradeS: 6, domain.GradeSPlus: 8},
	"f6":       {domain.GradeS: 8, domain.GradeSPlus: 10},
	"f7":       {domain.GradeS: 10, domain.GradeSPlus: 14},
	"m1":       {domain.GradeS: 6, domain.GradeSPlus: 8},
	"m2":       {domain.GradeS: 7, domain.GradeSPlus: 9},
	"m3":       {domain.GradeS: 8, domain.GradeSPlus: 10},
	"m4":       {domain.GradeS: 9, domain.GradeSPlus: 12},
	"m5":       {domain.GradeS: 10, domain.GradeSPlus: 14},
	"m6":       {domain.GradeS: 14, domain.GradeSPlus: 18},
	"m7":       {domain.GradeS: 18, domain.GradeSPlus: 24},
}

type slayerTier struct {
	slayer string
	tiers  []string
}

var slayerOrder = []slayerTier{
	{"revenant", []string{"t4"}},
	{"tarantula", []string{"t4"}},
	{"sven", []string{"t4"}},
	{"voidgloom", []string{"t3", "t4"}},
	{"blaze", []string{"t2", "t3", "t4"}},
}

var slayerPoints = map[string]map[string]gradePoints{
	"revenant":  {"t4": {domain.GradeS: 5, domain.GradeSPlus: 7}},
	"tarantula": {"t4": {domain.GradeS: 5, domain.GradeSPlus: 7}},
	"sven":      {"t4": {domain.GradeS: 6, domain.GradeSPlus: 8}},
	"voidgloom": {
		"t3": {domain.GradeS: 8, domain.GradeSPlus: 10},
		"t4": {domain.GradeS: 12, domain.GradeSPlus: 16},
	},
	"blaze": {
		"t2": {domain.GradeS: 10, domain.GradeSPlus: 14},
		"t3": {domain.GradeS: 16, domain.GradeSPlus: 20},
		"t4": {domain.GradeS: 20, domain.GradeSPlus: 26},
	},
}

// SlayerFormatHint explains how slayer floor/tier values are written.
const SlayerFormatHint = "for slayers use 'slayer_name tier', e.g. 'voidgloom t4'"

// ComputePoints returns base points times runs. Any unknown key, or a
// non-positive run count, yields 0.
func ComputePoints(carryType, floorOrTier, grade string, runs int) int {
	if runs <= 0 {
		return 0
	}
	ct, ok := domain.ParseCarryType(carryType)
	if !ok {
		return 0
	}
	g, ok := domain.ParseGrade(grade)
	if !ok {
		return 0
	}
	return basePoints(ct, floorOrTier, g) * runs
}

func basePoints(ct domain.CarryType, floorOrTier string, g domain.Grade) int {
	key := normalizeFloorOrTier(floorOrTier)
	switch ct {
	case domain.CarryTypeDungeon:
		return dungeonPoints[key][g]
	case domain.CarryTypeSlayer:
		slayer, tier, ok := splitSlayer(key)
		if !ok {
			return 0
		}
		return slayerPoints[slayer][tier][g]
	default:
		return 0
	}
}

// ValidOptions lists the accepted floor/tier values for a carry type.
func ValidOptions(ct domain.CarryType) []string {
	switch ct {
	case domain.CarryTypeDungeon:
		return append([]string(nil), dungeonFloors...)
	case domain.CarryTypeSlayer:
		var out []string
		for _, s := range slayerOrder {
			for _, t := range s.tiers {
				out = append(out, s.slayer+" "+t)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeFloorOrTier(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

func splitSlayer(key string) (string, string, bool) {
	parts := strings.Fields(key)
	if len(parts) < 2 {
		parts = strings.Split(key, "_")
	}
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
