package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Problem is a 0/1 integer program over items split into groups: maximize
// Value·x subject to exactly Need[g] chosen items in every group g and
// Cost·x <= Budget.
type Problem struct {
	Value  []float64
	Cost   []float64
	Group  []int
	Need   []int
	Budget float64
	// Start is an optional feasible assignment used as the first incumbent.
	Start    []bool
	MaxNodes int
}

// Solution is an optimal binary assignment.
type Solution struct {
	X         []bool
	Objective float64
	Nodes     int
}

const (
	DefaultMaxNodes = 200000

	feasibilityTol = 1e-6
	boundTol       = 1e-9

	// Any multiplier gives a valid bound, so stopping the bisection early
	// only loosens it.
	bisectionSteps = 40
	maxMultiplier  = 1e12
)

// Solve runs depth-first branch-and-bound. Nodes are bounded by the
// Lagrangian relaxation of the budget row: for a multiplier λ >= 0 the best
// Need[g] items of every group ranked by Value - λ·Cost give an upper bound,
// minimized over λ by bisection.
func (p *Problem) Solve(ctx context.Context) (*Solution, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	n := len(p.Value)
	maxNodes := p.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	s := &search{problem: p, bestObj: math.Inf(-1)}
	if p.Start != nil {
		s.offer(p.Start)
	}

	root := make([]int8, n)
	for i := range root {
		root[i] = free
	}
	stack := [][]int8{root}

	for len(stack) > 0 {
		if s.nodes%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if s.nodes >= maxNodes {
			return nil, fmt.Errorf("%w: explored %d nodes", ErrSolverLimit, s.nodes)
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.nodes++

		r := s.relax(node)
		if r.infeasible {
			continue
		}
		if r.feasible != nil {
			s.offer(r.feasible)
		}
		if r.branch < 0 || r.bound <= s.bestObj+boundTol {
			continue
		}

		down := append([]int8(nil), node...)
		down[r.branch] = 0
		up := append([]int8(nil), node...)
		up[r.branch] = 1
		stack = append(stack, down, up)
	}

	if s.best == nil {
		return nil, ErrInfeasible
	}
	return &Solution{X: s.best, Objective: s.bestObj, Nodes: s.nodes}, nil
}

func (p *Problem) validate() error {
	n := len(p.Value)
	if n == 0 {
		return fmt.Errorf("%w: problem has no variables", ErrValidation)
	}
	if len(p.Cost) != n || len(p.Group) != n {
		return fmt.Errorf("%w: %d values, %d costs and %d groups, want equal lengths", ErrValidation, n, len(p.Cost), len(p.Group))
	}
	for j := range p.Value {
		if math.IsNaN(p.Value[j]) || math.IsInf(p.Value[j], 0) || math.IsNaN(p.Cost[j]) || math.IsInf(p.Cost[j], 0) {
			return fmt.Errorf("%w: item %d has a non-finite value or cost", ErrValidation, j)
		}
		if p.Group[j] < 0 || p.Group[j] >= len(p.Need) {
			return fmt.Errorf("%w: item %d is in unknown group %d", ErrValidation, j, p.Group[j])
		}
	}
	for g, k := range p.Need {
		if k < 0 {
			return fmt.Errorf("%w: group %d needs %d items", ErrValidation, g, k)
		}
	}
	if math.IsNaN(p.Budget) || math.IsInf(p.Budget, 0) {
		return fmt.Errorf("%w: non-finite budget", ErrValidation)
	}
	if p.Start != nil && len(p.Start) != n {
		return fmt.Errorf("%w: start assignment has %d values, want %d", ErrValidation, len(p.Start), n)
	}
	return nil
}

// Feasible checks an assignment against the group counts and the budget.
func (p *Problem) Feasible(x []bool) bool {
	if len(x) != len(p.Value) {
		return false
	}
	counts := make([]int, len(p.Need))
	cost := 0.0
	for j, on := range x {
		if on {
			counts[p.Group[j]]++
			cost += p.Cost[j]
		}
	}
	for g, k := range p.Need {
		if counts[g] != k {
			return false
		}
	}
	return cost <= p.Budget+feasibilityTol
}

func (p *Problem) value(x []bool) float64 {
	total := 0.0
	for j, on := range x {
		if on {
			total += p.Value[j]
		}
	}
	return total
}

const free int8 = -1

type search struct {
	problem *Problem
	best    []bool
	bestObj float64
	nodes   int
}

// offer records x as the incumbent when it is feasible and strictly better.
func (s *search) offer(x []bool) {
	if !s.problem.Feasible(x) {
		return
	}
	if v := s.problem.value(x); v > s.bestObj+boundTol {
		s.best = append([]bool(nil), x...)
		s.bestObj = v
	}
}

type relaxation struct {
	infeasible bool
	bound      float64
	// feasible is a completion of the node within budget, nil if none was
	// found.
	feasible []bool
	// branch is the free item to branch on, -1 when the node is settled.
	branch int
}

func (s *search) relax(node []int8) relaxation {
	p := s.problem

	l := &lagrangian{problem: p, need: append([]int(nil), p.Need...), budget: p.Budget}
	l.groups = make([][]int, len(p.Need))
	fixed := 0.0
	for j, state := range node {
		g := p.Group[j]
		switch state {
		case 1:
			l.need[g]--
			l.budget -= p.Cost[j]
			fixed += p.Value[j]
		case free:
			l.groups[g] = append(l.groups[g], j)
		}
	}
	for g, k := range l.need {
		if k < 0 || len(l.groups[g]) < k {
			return relaxation{infeasible: true}
		}
	}

	// The best completion ignoring the budget settles the node when it fits.
	over := l.pick(0)
	if l.fits(over) {
		return relaxation{bound: fixed + over.value, feasible: assign(node, over.items), branch: -1}
	}
	if !l.fits(l.cheapest()) {
		return relaxation{infeasible: true}
	}

	bound := l.dual(0, over)
	lo, hi := 0.0, 1.0
	var under selection
	for {
		sel := l.pick(hi)
		bound = math.Min(bound, l.dual(hi, sel))
		if l.fits(sel) {
			under = sel
			break
		}
		if hi >= maxMultiplier {
			under = l.cheapest()
			break
		}
		over, lo = sel, hi
		hi *= 2
	}
	for i := 0; i < bisectionSteps && hi-lo > 1e-12*hi; i++ {
		mid := (lo + hi) / 2
		sel := l.pick(mid)
		bound = math.Min(bound, l.dual(mid, sel))
		if l.fits(sel) {
			under, hi = sel, mid
		} else {
			over, lo = sel, mid
		}
	}

	r := relaxation{bound: fixed + bound, feasible: assign(node, under.items), branch: -1}
	if bound > under.value+boundTol {
		r.branch = branchItem(node, over.items, under.items)
	}
	return r
}

// selection is a choice of Need items from every group.
type selection struct {
	items []int
	value float64
	cost  float64
}

// lagrangian holds the free items of a node per group, with the counts and
// budget left after the fixed items.
type lagrangian struct {
	problem *Problem
	groups  [][]int
	need    []int
	budget  float64
	order   []int
}

func (l *lagrangian) fits(sel selection) bool {
	return sel.cost <= l.budget+feasibilityTol
}

// dual is the Lagrangian value of sel, the maximizer at multiplier lambda.
func (l *lagrangian) dual(lambda float64, sel selection) float64 {
	return sel.value + lambda*(l.budget-sel.cost)
}

// pick takes the top items of every group by Value - lambda·Cost, cheaper
// first on ties.
func (l *lagrangian) pick(lambda float64) selection {
	p := l.problem
	return l.choose(func(a, b int) bool {
		ra, rb := p.Value[a]-lambda*p.Cost[a], p.Value[b]-lambda*p.Cost[b]
		if ra != rb {
			return ra > rb
		}
		if p.Cost[a] != p.Cost[b] {
			return p.Cost[a] < p.Cost[b]
		}
		return a < b
	})
}

// cheapest takes the cheapest items of every group.
func (l *lagrangian) cheapest() selection {
	p := l.problem
	return l.choose(func(a, b int) bool {
		if p.Cost[a] != p.Cost[b] {
			return p.Cost[a] < p.Cost[b]
		}
		if p.Value[a] != p.Value[b] {
			return p.Value[a] > p.Value[b]
		}
		return a < b
	})
}

func (l *lagrangian) choose(less func(a, b int) bool) selection {
	p := l.problem
	var sel selection
	for g, items := range l.groups {
		k := l.need[g]
		if k == 0 {
			continue
		}
		l.order = append(l.order[:0], items...)
		sort.Slice(l.order, func(i, j int) bool { return less(l.order[i], l.order[j]) })
		for _, j := range l.order[:k] {
			sel.items = append(sel.items, j)
			sel.value += p.Value[j]
			sel.cost += p.Cost[j]
		}
	}
	return sel
}

func assign(node []int8, items []int) []bool {
	x := make([]bool, len(node))
	for j, state := range node {
		x[j] = state == 1
	}
	for _, j := range items {
		x[j] = true
	}
	return x
}

// branchItem returns an item the over-budget selection takes and the
// within-budget one does not. The relaxed optimum mixes the two, so these
// are the fractional items.
func branchItem(node []int8, over, under []int) int {
	in := make(map[int]struct{}, len(under))
	for _, j := range under {
		in[j] = struct{}{}
	}
	for _, j := range over {
		if _, ok := in[j]; !ok {
			return j
		}
	}
	for j, state := range node {
		if state == free {
			return j
		}
	}
	return -1
}
