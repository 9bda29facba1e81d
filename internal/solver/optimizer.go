package solver

import (
	"math"
	"time"
)

// Params are the simulated-annealing tunables from §4.3: the starting
// temperature, the per-iteration multiplicative cooling rate, and the
// temperature floor below which the run stops cooling (but keeps
// searching, greedily, until the deadline).
type Params struct {
	InitialTemperature float64
	CoolingRate        float64
	MinTemperature     float64
}

// move kinds and their §4.3 selection weights. Weights need not sum to 1; a
// single cumulative roll over their sum picks among them.
const (
	moveReschedule = 0
	moveSwapTimes  = 1
	moveReroom     = 2
	moveCompact    = 3
)

var moveWeights = [4]float64{0.40, 0.30, 0.20, 0.10}

// rescheduleRetries is the number of times Reschedule retries locally
// after proposing a day/time that doesn't fit, per §4.3's "reject the move
// locally and retry once."
const rescheduleRetries = 1

// compactMinGapMin is the minimum idle gap the Compact move preserves
// between the moved assignment and its anchor.
const compactMinGapMin = 30

// deadlineCheckEvery bounds how often the optimizer calls time.Now(), since
// a syscall on every one of potentially millions of iterations would
// dominate the run.
const deadlineCheckEvery = 256

// Optimize runs hard-monotonic simulated annealing starting from the given
// assignment set until the deadline passes. A neighbour that increases the
// hard violation count is always rejected, independent of temperature; a
// neighbour that is hard-neutral or hard-improving is subject to the usual
// Metropolis acceptance test on fitness. The best schedule seen at any
// point (fewest hard violations, then highest fitness) is what gets
// returned, not merely the final one.
func Optimize(p *Problem, initial []Assignment, rng RNG, params Params, deadline time.Time) ([]Assignment, Report) {
	current := cloneAssignments(initial)
	currentReport := Evaluate(p, current)

	best := cloneAssignments(current)
	bestReport := currentReport

	temperature := params.InitialTemperature
	if temperature <= 0 {
		temperature = 1
	}

	iteration := 0
	for {
		iteration++
		if iteration%deadlineCheckEvery == 0 && !time.Now().Before(deadline) {
			break
		}

		candidate, ok := proposeMove(p, current, rng)
		if !ok {
			continue
		}
		candidateReport := Evaluate(p, candidate)

		if accept(currentReport, candidateReport, temperature, rng) {
			current = candidate
			currentReport = candidateReport
			if better(currentReport, bestReport) {
				best = cloneAssignments(current)
				bestReport = currentReport
			}
		}

		if temperature > params.MinTemperature {
			temperature *= params.CoolingRate
			if temperature < params.MinTemperature {
				temperature = params.MinTemperature
			}
		}

		if iteration%deadlineCheckEvery == 0 && !time.Now().Before(deadline) {
			break
		}
	}

	return best, bestReport
}

// better reports whether candidate strictly dominates incumbent: fewer
// hard violations always wins; among equal hard counts, higher fitness
// wins.
func better(candidate, incumbent Report) bool {
	if candidate.HardCount != incumbent.HardCount {
		return candidate.HardCount < incumbent.HardCount
	}
	return candidate.RawFitness > incumbent.RawFitness
}

// accept implements the hard-monotonic Metropolis rule: any increase in
// hard violation count is rejected outright; otherwise the usual
// temperature-scaled acceptance probability applies to the fitness delta.
func accept(current, candidate Report, temperature float64, rng RNG) bool {
	if candidate.HardCount > current.HardCount {
		return false
	}
	if candidate.HardCount < current.HardCount {
		return true
	}
	delta := candidate.RawFitness - current.RawFitness
	if delta >= 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return rng.Float64() < math.Exp(delta/temperature)
}

func proposeMove(p *Problem, current []Assignment, rng RNG) ([]Assignment, bool) {
	if len(current) == 0 {
		return nil, false
	}

	switch pickMove(rng) {
	case moveReschedule:
		return moveRescheduleFn(p, current, rng)
	case moveSwapTimes:
		return moveSwapTimesFn(current, rng)
	case moveReroom:
		return moveReroomFn(p, current, rng)
	default:
		return moveCompactFn(p, current, rng)
	}
}

func pickMove(rng RNG) int {
	var total float64
	for _, w := range moveWeights {
		total += w
	}
	roll := rng.Float64() * total
	var acc float64
	for i, w := range moveWeights {
		acc += w
		if roll < acc {
			return i
		}
	}
	return len(moveWeights) - 1
}

// moveRescheduleFn picks one assignment and proposes a new (day, start_min)
// for it, with probability 0.7 drawing the day from the instructor's
// preferred_days when any are set. A proposal whose end time falls outside
// the working window, or whose instructor is unavailable, is rejected
// locally and retried once before the move gives up.
func moveRescheduleFn(p *Problem, current []Assignment, rng RNG) ([]Assignment, bool) {
	slots := p.TimeSlots()
	if len(slots) == 0 {
		return nil, false
	}
	idx := rng.Intn(len(current))
	course, ok := p.CourseByID(current[idx].CourseID)
	if !ok {
		return nil, false
	}
	instructor, _ := p.InstructorByID(current[idx].InstructorID)

	for attempt := 0; attempt <= rescheduleRetries; attempt++ {
		day := rescheduleDay(p, instructor, rng)
		start := slots[rng.Intn(len(slots))]
		end := start + course.DurationMin
		if end > p.Constraints.WorkingHoursEnd {
			continue
		}
		if !p.InstructorFree(current[idx].InstructorID, day, start, end) {
			continue
		}
		next := cloneAssignments(current)
		next[idx].Day = day
		next[idx].StartMin = start
		next[idx].EndMin = end
		return next, true
	}
	return nil, false
}

// rescheduleDay draws a day for the Reschedule move: with probability 0.7,
// from the instructor's preferred_days when set; otherwise uniformly from
// the full week.
func rescheduleDay(p *Problem, instructor Instructor, rng RNG) Day {
	if len(instructor.Preferences.PreferredDays) > 0 && rng.Float64() < 0.7 {
		preferred := sortedDays(instructor.Preferences.PreferredDays)
		if len(preferred) > 0 {
			return preferred[rng.Intn(len(preferred))]
		}
	}
	return sortedDays(nil)[rng.Intn(7)]
}

// moveSwapTimesFn picks two assignments and swaps their (day, start_min,
// end_min) triples. Every other field, including room and instructor, is
// left unchanged.
func moveSwapTimesFn(current []Assignment, rng RNG) ([]Assignment, bool) {
	if len(current) < 2 {
		return nil, false
	}
	i := rng.Intn(len(current))
	j := rng.Intn(len(current))
	if i == j {
		j = (j + 1) % len(current)
	}
	next := cloneAssignments(current)
	next[i].Day, next[j].Day = next[j].Day, next[i].Day
	next[i].StartMin, next[j].StartMin = next[j].StartMin, next[i].StartMin
	next[i].EndMin, next[j].EndMin = next[j].EndMin, next[i].EndMin
	return next, true
}

// moveReroomFn picks one assignment and replaces its room with a uniformly
// random choice from the course's suitable rooms.
func moveReroomFn(p *Problem, current []Assignment, rng RNG) ([]Assignment, bool) {
	idx := rng.Intn(len(current))
	course, ok := p.CourseByID(current[idx].CourseID)
	if !ok {
		return nil, false
	}
	candidates := p.SuitableRooms(course.ID)
	if len(candidates) == 0 {
		return nil, false
	}
	next := cloneAssignments(current)
	next[idx].RoomID = candidates[rng.Intn(len(candidates))].ID
	return next, true
}

// moveCompactFn picks one assignment and an anchor assignment sharing its
// instructor and day, then proposes placing the chosen assignment
// immediately before or after the anchor (gap >= compactMinGapMin),
// preserving duration, provided the result fits the working window.
func moveCompactFn(p *Problem, current []Assignment, rng RNG) ([]Assignment, bool) {
	idx := rng.Intn(len(current))
	moved := current[idx]

	var anchors []int
	for i, x := range current {
		if i != idx && x.InstructorID == moved.InstructorID && x.Day == moved.Day {
			anchors = append(anchors, i)
		}
	}
	if len(anchors) == 0 {
		return nil, false
	}
	anchor := current[anchors[rng.Intn(len(anchors))]]
	duration := moved.EndMin - moved.StartMin

	var start int
	if rng.Float64() < 0.5 {
		start = anchor.StartMin - compactMinGapMin - duration
	} else {
		start = anchor.EndMin + compactMinGapMin
	}
	end := start + duration
	window := p.WorkingWindow()
	if !window.Contains(TimeInterval{Start: start, End: end}) {
		return nil, false
	}

	next := cloneAssignments(current)
	next[idx].StartMin = start
	next[idx].EndMin = end
	return next, true
}

func cloneAssignments(a []Assignment) []Assignment {
	out := make([]Assignment, len(a))
	copy(out, a)
	return out
}
