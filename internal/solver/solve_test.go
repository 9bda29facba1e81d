package solver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallFeasibleProblem(t *testing.T) *Problem {
	t.Helper()
	instructors := []Instructor{simpleInstructor("inst-1"), simpleInstructor("inst-2")}
	rooms := []Room{
		{ID: "room-1", Capacity: 50, Type: "LECTURE"},
		{ID: "room-2", Capacity: 50, Type: "LECTURE"},
	}
	groups := []StudentGroup{{ID: "group-1", Size: 20}, {ID: "group-2", Size: 15}}
	courses := []Course{
		{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}},
		{ID: "course-2", DurationMin: 60, InstructorIDs: []string{"inst-2"}, GroupIDs: []string{"group-1", "group-2"}},
		{ID: "course-3", DurationMin: 90, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-2"}},
	}
	p, err := NewProblem(courses, instructors, rooms, groups, baseConstraints())
	require.NoError(t, err)
	return p
}

func TestSolveProducesHardFeasibleScheduleWhenOneExists(t *testing.T) {
	p := smallFeasibleProblem(t)

	result := Solve(p, Params{InitialTemperature: 100, CoolingRate: 0.995, MinTemperature: 0.01}, 200*time.Millisecond, 7)

	assert.Equal(t, 0, result.HardCount, "violations: %+v", result.Violations)
	assert.False(t, result.TimedOut)
	assert.Len(t, result.Assignments, len(p.Pairs))
}

func TestSeedIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	p := smallFeasibleProblem(t)

	first := Seed(p)
	second := Seed(p)

	assert.Equal(t, first, second, "the greedy seeder has no randomness and must reproduce the same placement every time")
}

func TestSolveRespectsTheTimeBudget(t *testing.T) {
	p := smallFeasibleProblem(t)
	params := Params{InitialTemperature: 100, CoolingRate: 0.995, MinTemperature: 0.01}

	start := time.Now()
	budget := 50 * time.Millisecond
	result := Solve(p, params, budget, 1)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, budget+500*time.Millisecond)
	assert.GreaterOrEqual(t, result.Elapsed, time.Duration(0))
}
