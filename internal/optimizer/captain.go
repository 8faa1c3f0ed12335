package optimizer

// SelectCaptain returns the highest-scoring starter, lower player id on ties.
// It returns nil only when there are no starters.
func SelectCaptain(starters []Candidate) *CaptainSelection {
	if len(starters) == 0 {
		return nil
	}
	best := &starters[0]
	for i := 1; i < len(starters); i++ {
		if better(&starters[i], best) {
			best = &starters[i]
		}
	}
	return &CaptainSelection{Player: *best, Score: best.Score}
}
