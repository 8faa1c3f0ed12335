package optimizer

import (
	"sort"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

// Candidate is a player-round eligible for selection together with the score
// driving the optimizer (a model prediction or the baseline) and its
// volatility.
type Candidate struct {
	models.PlayerRound
	Score      float64 `json:"score"`
	Volatility float64 `json:"volatility"`
}

// Squad is a starting eleven and its bench. It is built once and never
// mutated.
type Squad struct {
	Starters []Candidate `json:"starters"`
	Bench    []Candidate `json:"bench"`
}

// CaptainSelection is the starter whose points count one and a half times.
type CaptainSelection struct {
	Player Candidate `json:"player"`
	Score  float64   `json:"score"`
}

// LuxuryReserveSelection is the bench player with the largest expected
// improvement over the best starter at the same position.
type LuxuryReserveSelection struct {
	Reserve             Candidate `json:"reserve"`
	Starter             Candidate `json:"starter"`
	ExpectedImprovement float64   `json:"expected_improvement"`
	ProbExceeds         float64   `json:"prob_exceeds"`
}

// Selection is the full outcome of squad generation for one score source.
type Selection struct {
	Squad   Squad                   `json:"squad"`
	Captain *CaptainSelection       `json:"captain,omitempty"`
	Luxury  *LuxuryReserveSelection `json:"luxury,omitempty"`
}

// StarterCost sums the starters' prices.
func (s Squad) StarterCost() float64 {
	total := 0.0
	for _, c := range s.Starters {
		total += c.Price
	}
	return total
}

// StarterScore sums the starters' scores.
func (s Squad) StarterScore() float64 {
	total := 0.0
	for _, c := range s.Starters {
		total += c.Score
	}
	return total
}

// canonicalLess orders candidates by position, score desc, price asc, then
// player id. Ties in the solver and selectors resolve through this order.
func canonicalLess(a, b *Candidate) bool {
	if ra, rb := a.Position.Rank(), b.Position.Rank(); ra != rb {
		return ra < rb
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.PlayerID < b.PlayerID
}

// SortCanonical sorts candidates in place in canonical order.
func SortCanonical(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return canonicalLess(&cs[i], &cs[j])
	})
}

// better reports whether a outranks b for a per-position pick: higher score
// first, then lower player id.
func better(a, b *Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.PlayerID < b.PlayerID
}
