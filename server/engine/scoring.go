package engine

import (
	"fmt"
	"strings"
)

// Objective selects how the two raw scores combine into each agent's reported score.
type Objective string

const (
	SelfInterested Objective = "self"
	Cooperative    Objective = "coop"
	Competitive    Objective = "comp"
)

// ParseObjective accepts the short names plus a few long spellings.
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "self", "orig", "original", "self-interested", "":
		return SelfInterested, nil
	case "coop", "cooperative":
		return Cooperative, nil
	case "comp", "competitive":
		return Competitive, nil
	}
	return "", fmt.Errorf("invalid objective %q", s)
}

// Score is the dot product of an allocation with a value profile.
// Both maps must carry the canonical item set; anything else is a caller bug.
func Score(values Values, alloc Allocation) int {
	if err := checkKeys(values); err != nil {
		panic("engine: score values: " + err.Error())
	}
	if err := checkKeys(alloc); err != nil {
		panic("engine: score allocation: " + err.Error())
	}
	total := 0
	for _, it := range Items {
		total += values[it] * alloc[it]
	}
	return total
}

// FinalScores combines raw scores under an objective.
func FinalScores(obj Objective, a, b int) (int, int) {
	switch obj {
	case Cooperative:
		return a + b, a + b
	case Competitive:
		return a - b, b - a
	default:
		return a, b
	}
}

// ValidDeal reports whether both proposals exist and sum to counts for every item.
func ValidDeal(counts Counts, pa, pb Allocation) bool {
	if pa == nil || pb == nil {
		return false
	}
	for _, it := range Items {
		if pa[it]+pb[it] != counts[it] {
			return false
		}
	}
	return true
}

// DealScores returns the reported scores for a pair of proposals.
// An invalid or missing deal scores zero for both, whatever the objective.
func DealScores(obj Objective, counts Counts, va, vb Values, pa, pb Allocation) (int, int) {
	if !ValidDeal(counts, pa, pb) {
		return 0, 0
	}
	return FinalScores(obj, Score(va, pa), Score(vb, pb))
}
