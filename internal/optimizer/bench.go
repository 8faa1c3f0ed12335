package optimizer

import "github.com/stitts-dev/cartola-optimizer/internal/models"

// SelectBench picks, for every position that has a starter, the best
// remaining candidate in the pool. Ties go to the lower player id, so the
// result does not depend on pool order.
func SelectBench(pool, starters []Candidate) []Candidate {
	started := make(map[int]struct{}, len(starters))
	usedPositions := make(map[models.Position]bool)
	for _, s := range starters {
		started[s.PlayerID] = struct{}{}
		usedPositions[s.Position] = true
	}

	bench := make([]Candidate, 0, len(models.Positions))
	for _, pos := range models.Positions {
		if !usedPositions[pos] {
			continue
		}
		var best *Candidate
		for i := range pool {
			c := &pool[i]
			if c.Position != pos {
				continue
			}
			if _, ok := started[c.PlayerID]; ok {
				continue
			}
			if best == nil || better(c, best) {
				best = c
			}
		}
		if best != nil {
			bench = append(bench, *best)
		}
	}
	return bench
}
