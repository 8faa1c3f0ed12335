package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

// SquadOptimizer picks the eleven starters that maximize total score under a
// budget and a formation.
type SquadOptimizer struct {
	maxNodes int
	logger   *logrus.Entry
	// observe, when set, receives the wall time of every solve.
	observe func(time.Duration)
}

// Option configures a SquadOptimizer.
type Option func(*SquadOptimizer)

// WithLogger overrides the optimizer's logger.
func WithLogger(entry *logrus.Entry) Option {
	return func(o *SquadOptimizer) { o.logger = entry }
}

// WithSolveObserver registers a callback for solve durations.
func WithSolveObserver(fn func(time.Duration)) Option {
	return func(o *SquadOptimizer) { o.observe = fn }
}

// NewSquadOptimizer builds an optimizer that gives up after maxNodes
// branch-and-bound nodes (DefaultMaxNodes when maxNodes <= 0).
func NewSquadOptimizer(maxNodes int, opts ...Option) *SquadOptimizer {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	o := &SquadOptimizer{
		maxNodes: maxNodes,
		logger:   logger.WithService("optimizer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize returns exactly formation.Total() starters in canonical order, or
// ErrInfeasible. It never returns a partial squad.
func (o *SquadOptimizer) Optimize(ctx context.Context, pool []Candidate, budget float64, formation models.FormationSpec) ([]Candidate, error) {
	start := time.Now()

	if err := validateInput(pool, budget, formation); err != nil {
		return nil, err
	}

	byPosition := make(map[models.Position][]Candidate)
	for _, c := range pool {
		if formation.Count(c.Position) > 0 {
			byPosition[c.Position] = append(byPosition[c.Position], c)
		}
	}

	minCost := 0.0
	for _, pos := range models.Positions {
		need := formation.Count(pos)
		if need == 0 {
			continue
		}
		group := byPosition[pos]
		if len(group) < need {
			return nil, fmt.Errorf("%w: %d %s candidates available, formation needs %d", ErrInfeasible, len(group), pos, need)
		}
		minCost += cheapest(group, need)
	}
	if minCost > budget+feasibilityTol {
		return nil, fmt.Errorf("%w: cheapest valid squad costs %.2f, budget is %.2f", ErrInfeasible, minCost, budget)
	}

	vars := make([]Candidate, 0, len(pool))
	for _, pos := range models.Positions {
		vars = append(vars, pruneDominated(byPosition[pos], formation.Count(pos))...)
	}

	problem := buildProblem(vars, budget, formation)
	problem.MaxNodes = o.maxNodes

	sol, err := problem.Solve(ctx)
	if o.observe != nil {
		o.observe(time.Since(start))
	}
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"candidates": len(pool),
			"variables":  len(vars),
			"budget":     budget,
		}).WithError(err).Warn("Squad optimization failed")
		return nil, err
	}

	starters := make([]Candidate, 0, formation.Total())
	for j, on := range sol.X {
		if on {
			starters = append(starters, vars[j])
		}
	}
	SortCanonical(starters)

	o.logger.WithFields(logrus.Fields{
		"candidates": len(pool),
		"variables":  len(vars),
		"nodes":      sol.Nodes,
		"score":      sol.Objective,
		"duration":   time.Since(start).String(),
	}).Debug("Squad optimized")

	return starters, nil
}

// Select runs the optimizer and then the bench, captain and luxury reserve
// selectors over the same pool.
func (o *SquadOptimizer) Select(ctx context.Context, pool []Candidate, budget float64, formation models.FormationSpec) (*Selection, error) {
	starters, err := o.Optimize(ctx, pool, budget, formation)
	if err != nil {
		return nil, err
	}
	bench := SelectBench(pool, starters)
	return &Selection{
		Squad:   Squad{Starters: starters, Bench: bench},
		Captain: SelectCaptain(starters),
		Luxury:  SelectLuxuryReserve(starters, bench),
	}, nil
}

func validateInput(pool []Candidate, budget float64, formation models.FormationSpec) error {
	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget < 0 {
		return fmt.Errorf("%w: budget must be a non-negative number, got %v", ErrValidation, budget)
	}
	if formation.Total() != models.StartersPerSquad {
		return fmt.Errorf("%w: formation has %d starters, want %d", ErrValidation, formation.Total(), models.StartersPerSquad)
	}
	seen := make(map[int]struct{}, len(pool))
	for _, c := range pool {
		if !c.Position.Valid() {
			return fmt.Errorf("%w: player %d has unknown position %q", ErrValidation, c.PlayerID, c.Position)
		}
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) || math.IsNaN(c.Price) || math.IsInf(c.Price, 0) {
			return fmt.Errorf("%w: player %d has a non-finite score or price", ErrValidation, c.PlayerID)
		}
		if _, dup := seen[c.PlayerID]; dup {
			return fmt.Errorf("%w: player %d appears twice in the pool", ErrValidation, c.PlayerID)
		}
		seen[c.PlayerID] = struct{}{}
	}
	return nil
}

func cheapest(group []Candidate, n int) float64 {
	prices := make([]float64, len(group))
	for i, c := range group {
		prices[i] = c.Price
	}
	sort.Float64s(prices)
	total := 0.0
	for _, p := range prices[:n] {
		total += p
	}
	return total
}

// pruneDominated drops candidates that at least need others in the same
// position beat on both price and score. Some optimal squad never uses them.
func pruneDominated(group []Candidate, need int) []Candidate {
	sorted := append([]Candidate(nil), group...)
	SortCanonical(sorted)

	kept := make([]Candidate, 0, len(sorted))
	for i := range sorted {
		dominators := 0
		for j := range sorted {
			if i != j && dominates(&sorted[j], &sorted[i]) {
				dominators++
				if dominators >= need {
					break
				}
			}
		}
		if dominators < need {
			kept = append(kept, sorted[i])
		}
	}
	return kept
}

func dominates(a, b *Candidate) bool {
	if a.Price > b.Price || a.Score < b.Score {
		return false
	}
	if a.Price < b.Price || a.Score > b.Score {
		return true
	}
	return canonicalLess(a, b)
}

// buildProblem groups the variables by position. The total starter count
// is the sum of the position counts, so it needs no row of its own.
func buildProblem(vars []Candidate, budget float64, formation models.FormationSpec) *Problem {
	groupOf := make(map[models.Position]int)
	var need []int
	for _, pos := range models.Positions {
		if n := formation.Count(pos); n > 0 {
			groupOf[pos] = len(need)
			need = append(need, n)
		}
	}

	n := len(vars)
	p := &Problem{
		Value:  make([]float64, n),
		Cost:   make([]float64, n),
		Group:  make([]int, n),
		Need:   need,
		Budget: budget,
		Start:  cheapestSquad(vars, formation),
	}
	for j, c := range vars {
		p.Value[j] = c.Score
		p.Cost[j] = c.Price
		p.Group[j] = groupOf[c.Position]
	}
	return p
}

// cheapestSquad takes the cheapest candidates per position. When any squad
// fits the budget this one does, so the search always starts with an
// incumbent.
func cheapestSquad(vars []Candidate, formation models.FormationSpec) []bool {
	idx := make([]int, len(vars))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := &vars[idx[a]], &vars[idx[b]]
		if ca.Position != cb.Position {
			return ca.Position.Rank() < cb.Position.Rank()
		}
		if ca.Price != cb.Price {
			return ca.Price < cb.Price
		}
		return better(ca, cb)
	})

	x := make([]bool, len(vars))
	taken := make(map[models.Position]int)
	for _, j := range idx {
		pos := vars[j].Position
		if taken[pos] < formation.Count(pos) {
			x[j] = true
			taken[pos]++
		}
	}
	return x
}
