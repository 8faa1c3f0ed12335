package optimizer

import "errors"

var (
	// ErrValidation marks malformed input: unknown formation, bad budget,
	// non-finite scores or prices.
	ErrValidation = errors.New("validation error")
	// ErrInfeasible is returned when no squad satisfies the constraints.
	ErrInfeasible = errors.New("infeasible optimization")
	// ErrSolverLimit is returned when branch-and-bound exhausts its node
	// budget before proving optimality.
	ErrSolverLimit = errors.New("solver node limit reached")
)
