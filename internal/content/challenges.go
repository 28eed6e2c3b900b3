package content

import (
	"sort"
	"strings"
)

// ChallengeOption is one answer on a challenge slide.
type ChallengeOption struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	EstimatedCost int64    `json:"estimated_cost"`
	ImpactPreview []Effect `json:"immediate_kpi_impact_preview"`
	IsDefault     bool     `json:"is_default_choice"`
}

var challengeOptions = map[string][]ChallengeOption{
	"ch1": {
		{ID: "A", Text: "Absorb the raw-material price spike", EstimatedCost: 40_000, IsDefault: true,
			ImpactPreview: []Effect{{KPI: KPICost, Change: 40_000, Timing: TimingImmediate}}},
		{ID: "B", Text: "Pass the increase on to customers", EstimatedCost: 0,
			ImpactPreview: []Effect{{KPI: KPIOrders, Change: -500, Timing: TimingImmediate}}},
	},
	"ch2": {
		{ID: "A", Text: "Rush the big retail order with overtime", EstimatedCost: 60_000,
			ImpactPreview: []Effect{{KPI: KPICost, Change: 60_000, Timing: TimingImmediate}}},
		{ID: "B", Text: "Decline the order and protect lead times", EstimatedCost: 0, IsDefault: true,
			ImpactPreview: []Effect{{KPI: KPIOrders, Change: -750, Timing: TimingImmediate}}},
	},
	"ch3": {
		{ID: "A", Text: "Settle the logistics dispute out of court", EstimatedCost: 50_000, IsDefault: true},
		{ID: "B", Text: "Fight the claim and risk the contract", EstimatedCost: 0},
	},
	"ch4": {
		{ID: "A", Text: "Keep the aging press running through peak season", EstimatedCost: 0, IsDefault: true},
		{ID: "B", Text: "Take the press offline for a rebuild now", EstimatedCost: 50_000,
			ImpactPreview: []Effect{
				{KPI: KPICapacity, Change: -500, Timing: TimingImmediate},
				{KPI: KPICost, Change: 50_000, Timing: TimingImmediate},
			}},
	},
	"ch5": {
		{ID: "A", Text: "Premium pricing repositioning", EstimatedCost: 30_000},
		{ID: "B", Text: "Volume discount program", EstimatedCost: 20_000},
		{ID: "C", Text: "Loyalty contract renewals", EstimatedCost: 25_000, IsDefault: true},
		{ID: "D", Text: "Spot-market clearance sales", EstimatedCost: 0},
	},
	"ch6": {
		{ID: "A", Text: "Recall the defective batch publicly", EstimatedCost: 80_000, IsDefault: true},
		{ID: "B", Text: "Handle complaints case by case", EstimatedCost: 20_000},
	},
}

// ch5 is the one multi-select challenge: a team commits to a pair of
// programs, and pricing strategies that undercut each other are illegal.
var legalCombinations = map[string]bool{
	"A+C": true,
	"B+C": true,
	"B+D": true,
	"C+D": true,
}

func ChallengeOptions(challengeID string) []ChallengeOption {
	return challengeOptions[challengeID]
}

func ChallengeOptionByID(challengeID, optionID string) (ChallengeOption, bool) {
	for _, opt := range challengeOptions[challengeID] {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return ChallengeOption{}, false
}

// DefaultOption returns the pre-selected answer committed for teams that
// never interact before time expires.
func DefaultOption(challengeID string) (ChallengeOption, bool) {
	for _, opt := range challengeOptions[challengeID] {
		if opt.IsDefault {
			return opt, true
		}
	}
	return ChallengeOption{}, false
}

// DefaultCombination is the pre-selected answer on multi-select challenges,
// where per-option defaults cannot express a pairing.
func DefaultCombination(challengeID string) (string, bool) {
	switch challengeID {
	case "ch5":
		return "C+D", true
	default:
		return "", false
	}
}

// CanonicalCombination normalizes a multi-select answer ("C+A" -> "A+C").
func CanonicalCombination(optionIDs []string) string {
	ids := make([]string, 0, len(optionIDs))
	for _, id := range optionIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, "+")
}

// IsLegalCombination checks a canonicalized multi-select token against the
// allow-list of compatible pairings.
func IsLegalCombination(token string) bool {
	return legalCombinations[token]
}
