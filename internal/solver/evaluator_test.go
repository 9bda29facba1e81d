package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFlagsRoomDoubleBooking(t *testing.T) {
	instructors := []Instructor{simpleInstructor("inst-1"), simpleInstructor("inst-2")}
	rooms := []Room{{ID: "room-1", Capacity: 50, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 10}, {ID: "group-2", Size: 10}}
	courses := []Course{
		{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}},
		{ID: "course-2", DurationMin: 60, InstructorIDs: []string{"inst-2"}, GroupIDs: []string{"group-2"}},
	}
	p, err := NewProblem(courses, instructors, rooms, groups, baseConstraints())
	require.NoError(t, err)

	assignments := []Assignment{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 9 * 60, EndMin: 10 * 60},
		{CourseID: "course-2", InstructorID: "inst-2", RoomID: "room-1", GroupID: "group-2", Day: Monday, StartMin: 9*60 + 30, EndMin: 10*60 + 30},
	}

	report := Evaluate(p, assignments)
	assert.Equal(t, 1, report.HardCount)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, RoomDoubleBooking, report.Violations[0].Kind)
	assert.Equal(t, baseFitness-PenaltyDoubleBooking, report.Fitness)
}

func TestEvaluateAllowsAbuttingIntervals(t *testing.T) {
	instructors := []Instructor{simpleInstructor("inst-1")}
	rooms := []Room{{ID: "room-1", Capacity: 50, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 10}}
	courses := []Course{{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}}}
	p, err := NewProblem(courses, instructors, rooms, groups, baseConstraints())
	require.NoError(t, err)

	assignments := []Assignment{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 9 * 60, EndMin: 10 * 60},
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 10 * 60, EndMin: 11 * 60},
	}

	report := Evaluate(p, assignments)
	assert.Equal(t, 0, report.HardCount)
}

func TestEvaluateFlagsUnassignedPair(t *testing.T) {
	groups := []StudentGroup{{ID: "group-1", Size: 10}}
	courses := []Course{{ID: "course-1", DurationMin: 60, GroupIDs: []string{"group-1"}}}
	p, err := NewProblem(courses, nil, nil, groups, baseConstraints())
	require.NoError(t, err)

	report := Evaluate(p, nil)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, CourseUnassigned, report.Violations[0].Kind)
}

func TestEvaluateChargesRoomCapacityExceeded(t *testing.T) {
	instructors := []Instructor{simpleInstructor("inst-1")}
	rooms := []Room{{ID: "room-1", Capacity: 5, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 40}}
	courses := []Course{{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}}}
	p, err := NewProblem(courses, instructors, rooms, groups, baseConstraints())
	require.NoError(t, err)

	assignments := []Assignment{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 9 * 60, EndMin: 10 * 60},
	}
	report := Evaluate(p, assignments)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, RoomCapacityExceeded, report.Violations[0].Kind)
}

func TestEvaluateSoftPreferredRoomMissOnlyWhenPreferenceGiven(t *testing.T) {
	instructors := []Instructor{simpleInstructor("inst-1")}
	rooms := []Room{{ID: "room-1", Capacity: 50, Type: "LECTURE"}, {ID: "room-2", Capacity: 50, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 10}}
	constraints := baseConstraints()
	constraints.PreferredRoomsWeight = 10

	coursesWithPref := []Course{{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}, PreferredRoomIDs: []string{"room-2"}}}
	pWithPref, err := NewProblem(coursesWithPref, instructors, rooms, groups, constraints)
	require.NoError(t, err)
	assignments := []Assignment{{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 9 * 60, EndMin: 10 * 60}}
	report := Evaluate(pWithPref, assignments)
	assert.Equal(t, 0, report.HardCount)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, PreferredRoomMiss, report.Violations[0].Kind)

	coursesNoPref := []Course{{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}}}
	pNoPref, err := NewProblem(coursesNoPref, instructors, rooms, groups, constraints)
	require.NoError(t, err)
	reportNoPref := Evaluate(pNoPref, assignments)
	assert.Empty(t, reportNoPref.Violations, "absent preference list charges zero penalty")
}

func TestCheckEditScopesToNeighbourhood(t *testing.T) {
	instructors := []Instructor{simpleInstructor("inst-1"), simpleInstructor("inst-2")}
	rooms := []Room{{ID: "room-1", Capacity: 50, Type: "LECTURE"}, {ID: "room-2", Capacity: 50, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 10}, {ID: "group-2", Size: 10}}
	courses := []Course{
		{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}},
		{ID: "course-2", DurationMin: 60, InstructorIDs: []string{"inst-2"}, GroupIDs: []string{"group-2"}},
	}
	p, err := NewProblem(courses, instructors, rooms, groups, baseConstraints())
	require.NoError(t, err)

	assignments := []Assignment{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 9 * 60, EndMin: 10 * 60},
		{CourseID: "course-2", InstructorID: "inst-2", RoomID: "room-2", GroupID: "group-2", Day: Tuesday, StartMin: 9 * 60, EndMin: 10 * 60},
	}

	edit := Edit{Index: 1, Day: Monday, StartMin: 9*60 + 15, EndMin: 10*60 + 15, RoomID: "room-1"}
	report := CheckEdit(p, assignments, edit)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, RoomDoubleBooking, report.Violations[0].Kind)
	assert.ElementsMatch(t, []int{0, 1}, report.Violations[0].AffectedAssignmentIndices)
}

// TestCheckEditIgnoresNoOpSoftPreferenceViolation covers Testable Property
// 6: a no-op edit that merely re-affirms an assignment already sitting on a
// non-preferred day must not surface that pre-existing SOFT violation as a
// conflict.
func TestCheckEditIgnoresNoOpSoftPreferenceViolation(t *testing.T) {
	inst := simpleInstructor("inst-1")
	inst.Preferences.PreferredDays = map[Day]bool{Monday: true}
	instructors := []Instructor{inst}
	rooms := []Room{{ID: "room-1", Capacity: 50, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 10}}
	courses := []Course{{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}}}
	constraints := baseConstraints()
	constraints.InstructorPreferencesWeight = 10
	p, err := NewProblem(courses, instructors, rooms, groups, constraints)
	require.NoError(t, err)

	assignments := []Assignment{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Tuesday, StartMin: 9 * 60, EndMin: 10 * 60},
	}
	edit := Edit{Index: 0, Day: Tuesday, StartMin: 9 * 60, EndMin: 10 * 60}

	report := CheckEdit(p, assignments, edit)
	assert.Empty(t, report.Violations, "a no-op edit must not report a pre-existing SOFT violation as a conflict")
}

// TestCheckEditIgnoresPreexistingHardViolation covers the other half of
// Testable Property 6: a HARD violation already present before the edit,
// and still present after it unchanged, is not reported as an "introduced"
// conflict — only the genuinely new overlaps the edit causes are.
func TestCheckEditIgnoresPreexistingHardViolation(t *testing.T) {
	instructors := []Instructor{simpleInstructor("inst-1"), simpleInstructor("inst-2"), simpleInstructor("inst-3")}
	rooms := []Room{{ID: "room-1", Capacity: 50, Type: "LECTURE"}, {ID: "room-2", Capacity: 50, Type: "LECTURE"}}
	groups := []StudentGroup{{ID: "group-1", Size: 10}, {ID: "group-2", Size: 10}, {ID: "group-3", Size: 10}}
	courses := []Course{
		{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}},
		{ID: "course-2", DurationMin: 60, InstructorIDs: []string{"inst-2"}, GroupIDs: []string{"group-2"}},
		{ID: "course-3", DurationMin: 60, InstructorIDs: []string{"inst-3"}, GroupIDs: []string{"group-3"}},
	}
	p, err := NewProblem(courses, instructors, rooms, groups, baseConstraints())
	require.NoError(t, err)

	// course-1 and course-2 already double-book room-1 on Monday, unrelated
	// to the edit below, which moves course-3 into the same room and day.
	assignments := []Assignment{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: Monday, StartMin: 9 * 60, EndMin: 10 * 60},
		{CourseID: "course-2", InstructorID: "inst-2", RoomID: "room-1", GroupID: "group-2", Day: Monday, StartMin: 9*60 + 15, EndMin: 10*60 + 15},
		{CourseID: "course-3", InstructorID: "inst-3", RoomID: "room-2", GroupID: "group-3", Day: Tuesday, StartMin: 9 * 60, EndMin: 10 * 60},
	}
	edit := Edit{Index: 2, Day: Monday, StartMin: 9*60 + 30, EndMin: 10*60 + 30, RoomID: "room-1"}

	report := CheckEdit(p, assignments, edit)
	for _, v := range report.Violations {
		assert.NotEqual(t, []int{0, 1}, v.AffectedAssignmentIndices, "the pre-existing course-1/course-2 conflict must not be reported again")
	}
	assert.Len(t, report.Violations, 2, "only the two new overlaps introduced by moving course-3 into room-1 are reported")
}
