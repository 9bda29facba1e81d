package solver

import "time"

// SolutionReport is the complete outcome of a Solve call: the best
// assignment set found, its violations and fitness, a TimedOut flag, and
// how long the run actually took. TimedOut is true whenever the returned
// solution still has hard violations; it does not record whether the
// deadline was actually reached.
type SolutionReport struct {
	Assignments []Assignment
	Violations  []Violation
	Fitness     float64
	HardCount   int
	TimedOut    bool
	Elapsed     time.Duration
}

// Solve runs the full two-phase pipeline of §4: a deterministic greedy
// seed followed by hard-monotonic simulated annealing, bounded by
// timeBudget. seed drives every random choice the optimizer makes, so two
// calls with the same problem, params, budget, and seed produce the same
// assignment set modulo wall-clock-dependent early stopping.
func Solve(p *Problem, params Params, timeBudget time.Duration, seed int64) SolutionReport {
	start := time.Now()
	deadline := start.Add(timeBudget)

	rng := NewRNG(seed)
	initial := Seed(p)

	best, report := Optimize(p, initial, rng, params, deadline)

	return SolutionReport{
		Assignments: best,
		Violations:  report.Violations,
		Fitness:     report.Fitness,
		HardCount:   report.HardCount,
		TimedOut:    report.HardCount > 0,
		Elapsed:     time.Since(start),
	}
}
