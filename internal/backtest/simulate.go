package backtest

import (
	"math"

	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
)

// captainBonus is the extra share of the captain's points.
const captainBonus = 0.5

// Outcome is a squad's realized and predicted totals for one round.
type Outcome struct {
	Realized    float64
	Predicted   float64
	LuxuryUsed  bool
	LuxuryDelta float64
}

// Simulate scores a selection with realized points. The luxury reserve
// replaces the weakest same-position starter only when it scored more; it
// never counts towards the predicted total.
func Simulate(sel *optimizer.Selection) Outcome {
	var out Outcome
	for _, s := range sel.Squad.Starters {
		out.Realized += s.Points
		out.Predicted += s.Score
	}
	if sel.Captain != nil {
		out.Realized += captainBonus * sel.Captain.Player.Points
		out.Predicted += captainBonus * sel.Captain.Player.Score
	}

	if sel.Luxury != nil {
		reserve := sel.Luxury.Reserve
		worst := math.Inf(1)
		for _, s := range sel.Squad.Starters {
			if s.Position == reserve.Position && s.Points < worst {
				worst = s.Points
			}
		}
		if !math.IsInf(worst, 1) && reserve.Points > worst {
			out.LuxuryUsed = true
			out.LuxuryDelta = reserve.Points - worst
			out.Realized += out.LuxuryDelta
		}
	}
	return out
}
