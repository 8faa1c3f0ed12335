package optimizer

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

// varianceFloor keeps the difference distribution non-degenerate.
const varianceFloor = 1e-9

// ExpectedImprovement treats the reserve and the starter as independent
// Gaussians and returns E[max(0, reserve - starter)] together with
// P(reserve > starter).
func ExpectedImprovement(muReserve, sigmaReserve, muStarter, sigmaStarter float64) (ei, prob float64) {
	muD := muReserve - muStarter
	sigmaD := math.Sqrt(math.Max(varianceFloor, sigmaReserve*sigmaReserve+sigmaStarter*sigmaStarter))
	z := muD / sigmaD
	cdf := distuv.UnitNormal.CDF(z)
	return muD*cdf + sigmaD*distuv.UnitNormal.Prob(z), cdf
}

// SelectLuxuryReserve compares each bench player against the best starter at
// its position and keeps the one with the largest expected improvement. It
// returns nil when no bench player shares a position with a starter.
func SelectLuxuryReserve(starters, bench []Candidate) *LuxuryReserveSelection {
	if len(bench) == 0 {
		return nil
	}

	bestStarter := make(map[models.Position]*Candidate)
	for i := range starters {
		s := &starters[i]
		if cur, ok := bestStarter[s.Position]; !ok || better(s, cur) {
			bestStarter[s.Position] = s
		}
	}

	var pick *LuxuryReserveSelection
	for i := range bench {
		r := &bench[i]
		s, ok := bestStarter[r.Position]
		if !ok {
			continue
		}
		ei, p := ExpectedImprovement(r.Score, sigma(r), s.Score, sigma(s))
		if pick == nil || ei > pick.ExpectedImprovement ||
			(ei == pick.ExpectedImprovement && r.PlayerID < pick.Reserve.PlayerID) {
			pick = &LuxuryReserveSelection{
				Reserve:             *r,
				Starter:             *s,
				ExpectedImprovement: ei,
				ProbExceeds:         p,
			}
		}
	}
	return pick
}

// sigma reads a candidate's volatility, 0 when missing.
func sigma(c *Candidate) float64 {
	if math.IsNaN(c.Volatility) || math.IsInf(c.Volatility, 0) {
		return 0
	}
	return c.Volatility
}
