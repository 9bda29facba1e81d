package solver

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Per-kind hard violation penalties, per §4.4's penalty table. Each is
// charged once per affected pair/assignment, not once per Report.
const (
	// PenaltyDoubleBooking is charged per conflicting pair for
	// ROOM_DOUBLE_BOOKING, INSTRUCTOR_DOUBLE_BOOKING, GROUP_DOUBLE_BOOKING.
	PenaltyDoubleBooking = 100.0
	// PenaltyCapacityOrType is charged per assignment for
	// ROOM_CAPACITY_EXCEEDED and ROOM_TYPE_MISMATCH.
	PenaltyCapacityOrType = 50.0
	// PenaltyUnavailableOrHours is charged per assignment for
	// INSTRUCTOR_UNAVAILABLE and OUTSIDE_WORKING_HOURS.
	PenaltyUnavailableOrHours = 100.0
	// PenaltyCourseUnassigned is charged per unassigned (course, group) pair.
	PenaltyCourseUnassigned = 200.0
)

// hardPenaltyByKind maps each hard ViolationKind to its §4.4 penalty.
var hardPenaltyByKind = map[ViolationKind]float64{
	RoomDoubleBooking:       PenaltyDoubleBooking,
	InstructorDoubleBooking: PenaltyDoubleBooking,
	GroupDoubleBooking:      PenaltyDoubleBooking,
	RoomCapacityExceeded:    PenaltyCapacityOrType,
	RoomTypeMismatch:        PenaltyCapacityOrType,
	InstructorUnavailable:   PenaltyUnavailableOrHours,
	OutsideWorkingHours:     PenaltyUnavailableOrHours,
	CourseUnassigned:        PenaltyCourseUnassigned,
}

// baseFitness is the nominal score of a violation-free, fully assigned
// schedule. Raw fitness is baseFitness minus the sum of all violation
// penalties and may go negative for badly broken schedules; the reported
// Fitness is clamped at 0.
const baseFitness = 1000.0

// compactGapThresholdMin is the idle gap, in minutes, between two
// consecutive classes of the same group on the same day above which the
// schedule is charged a compactness penalty.
const compactGapThresholdMin = 60

// Report is the outcome of evaluating a full assignment set: its fitness
// score, the violation list behind that score, and the count of hard
// violations (zero means hard-feasible).
type Report struct {
	// Fitness is baseFitness minus the sum of all violation penalties,
	// clamped at 0 per §4.4 (f(S) = max(0, 1000 - Σ penalties)). This is
	// what goes on the wire.
	Fitness float64
	// RawFitness is the same quantity before clamping. The optimizer ranks
	// candidates on this so that two badly broken schedules which both
	// clamp to 0 are still ordered correctly.
	RawFitness float64
	Violations []Violation
	HardCount  int
}

// Evaluate scores a complete or partial assignment set against the
// problem's hard and soft constraints per §4.4. Unassigned pairs (those in
// p.Pairs with no corresponding Assignment) are charged a COURSE_UNASSIGNED
// hard violation each.
func Evaluate(p *Problem, assignments []Assignment) Report {
	return evaluateScope(p, assignments, true)
}

// evaluateScope is the shared implementation behind Evaluate and CheckEdit.
// includeUnassigned is false for a neighbourhood-scoped check, where the
// scope deliberately excludes most pairs and a COURSE_UNASSIGNED verdict
// would be meaningless.
func evaluateScope(p *Problem, assignments []Assignment, includeUnassigned bool) Report {
	var violations []Violation

	violations = append(violations, checkDoubleBookings(p, assignments)...)
	violations = append(violations, checkCapacityAndType(p, assignments)...)
	violations = append(violations, checkInstructorAvailability(p, assignments)...)
	violations = append(violations, checkWorkingHours(p, assignments)...)
	if includeUnassigned {
		violations = append(violations, checkUnassigned(p, assignments)...)
	}

	violations = append(violations, checkInstructorPreferences(p, assignments)...)
	violations = append(violations, checkCompactness(p, assignments)...)
	violations = append(violations, checkBalancedLoad(p, assignments)...)
	violations = append(violations, checkPreferredRooms(p, assignments)...)

	return buildReport(violations)
}

func buildReport(violations []Violation) Report {
	raw := baseFitness
	hardCount := 0
	for _, v := range violations {
		raw -= v.Penalty
		if v.Severity == Hard {
			hardCount++
		}
	}
	fitness := raw
	if fitness < 0 {
		fitness = 0
	}
	return Report{Fitness: fitness, RawFitness: raw, Violations: violations, HardCount: hardCount}
}

func hardViolation(kind ViolationKind, desc string, indices ...int) Violation {
	return Violation{Kind: kind, Severity: Hard, Penalty: hardPenaltyByKind[kind], Description: desc, AffectedAssignmentIndices: indices}
}

func softViolation(kind ViolationKind, weight float64, desc string, indices ...int) Violation {
	return Violation{Kind: kind, Severity: Soft, Penalty: weight, Description: desc, AffectedAssignmentIndices: indices}
}

func checkDoubleBookings(p *Problem, a []Assignment) []Violation {
	var out []Violation
	if p.Constraints.NoRoomDoubleBooking {
		out = append(out, pairwiseOverlaps(a, func(x Assignment) string { return x.RoomID }, RoomDoubleBooking, "room double-booked")...)
	}
	if p.Constraints.NoInstructorDoubleBooking {
		out = append(out, pairwiseOverlaps(a, func(x Assignment) string { return x.InstructorID }, InstructorDoubleBooking, "instructor double-booked")...)
	}
	// Group double-booking is always checked: a group cannot attend two
	// classes at once regardless of the room/instructor toggles.
	out = append(out, pairwiseOverlaps(a, func(x Assignment) string { return x.GroupID }, GroupDoubleBooking, "group double-booked")...)
	return out
}

// pairwiseOverlaps groups assignments by key(x) and day, then flags every
// pair within a group whose time intervals overlap.
func pairwiseOverlaps(a []Assignment, key func(Assignment) string, kind ViolationKind, desc string) []Violation {
	type bucketKey struct {
		k   string
		day Day
	}
	buckets := make(map[bucketKey][]int)
	for i, x := range a {
		k := bucketKey{key(x), x.Day}
		buckets[k] = append(buckets[k], i)
	}
	var out []Violation
	for _, idxs := range buckets {
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				ai, aj := a[idxs[i]], a[idxs[j]]
				if ai.Interval().Overlaps(aj.Interval()) {
					out = append(out, hardViolation(kind, desc, idxs[i], idxs[j]))
				}
			}
		}
	}
	return out
}

func checkCapacityAndType(p *Problem, a []Assignment) []Violation {
	var out []Violation
	for i, x := range a {
		room, ok := p.RoomByID(x.RoomID)
		if !ok {
			continue
		}
		if p.Constraints.RoomCapacityCheck {
			if group, ok := p.GroupByID(x.GroupID); ok && group.Size > room.Capacity {
				out = append(out, hardViolation(RoomCapacityExceeded, "room capacity exceeded", i))
			}
		}
		if p.Constraints.RoomTypeMatch {
			if course, ok := p.CourseByID(x.CourseID); ok && course.RequiredRoomType != "" && course.RequiredRoomType != room.Type {
				out = append(out, hardViolation(RoomTypeMismatch, "room type mismatch", i))
			}
		}
	}
	return out
}

func checkInstructorAvailability(p *Problem, a []Assignment) []Violation {
	var out []Violation
	for i, x := range a {
		if !p.InstructorFree(x.InstructorID, x.Day, x.StartMin, x.EndMin) {
			if p.Constraints.WorkingHoursOnly && !p.WorkingWindow().Contains(x.Interval()) {
				continue // charged once below as OUTSIDE_WORKING_HOURS, not double-charged here
			}
			out = append(out, hardViolation(InstructorUnavailable, "instructor unavailable", i))
		}
	}
	return out
}

func checkWorkingHours(p *Problem, a []Assignment) []Violation {
	if !p.Constraints.WorkingHoursOnly {
		return nil
	}
	var out []Violation
	window := p.WorkingWindow()
	for i, x := range a {
		if !window.Contains(x.Interval()) {
			out = append(out, hardViolation(OutsideWorkingHours, "assignment falls outside working hours", i))
		}
	}
	return out
}

func checkUnassigned(p *Problem, a []Assignment) []Violation {
	assigned := make(map[CourseGroupPair]bool, len(a))
	for _, x := range a {
		assigned[CourseGroupPair{CourseID: x.CourseID, GroupID: x.GroupID}] = true
	}
	var out []Violation
	for _, pair := range p.Pairs {
		if !assigned[pair] {
			out = append(out, hardViolation(CourseUnassigned, "course/group pair has no assignment"))
		}
	}
	return out
}

func checkInstructorPreferences(p *Problem, a []Assignment) []Violation {
	if p.Constraints.InstructorPreferencesWeight <= 0 {
		return nil
	}
	var out []Violation
	for i, x := range a {
		inst, ok := p.InstructorByID(x.InstructorID)
		if !ok || len(inst.Preferences.PreferredDays) == 0 {
			continue
		}
		if !inst.Preferences.PreferredDays[x.Day] {
			out = append(out, softViolation(InstructorPreferenceViolated, p.Constraints.InstructorPreferencesWeight, "assignment falls outside instructor's preferred days", i))
		}
	}
	return out
}

func checkCompactness(p *Problem, a []Assignment) []Violation {
	if p.Constraints.CompactSchedulesWeight <= 0 {
		return nil
	}
	var out []Violation
	byGroupDay := groupIndicesByKeyDay(a, func(x Assignment) string { return x.GroupID })
	for _, idxs := range byGroupDay {
		sort.Slice(idxs, func(i, j int) bool { return a[idxs[i]].StartMin < a[idxs[j]].StartMin })
		for k := 1; k < len(idxs); k++ {
			prev, cur := a[idxs[k-1]], a[idxs[k]]
			gap := cur.StartMin - prev.EndMin
			if gap > compactGapThresholdMin {
				penalty := p.Constraints.CompactSchedulesWeight * float64(gap-compactGapThresholdMin) / 60.0
				out = append(out, softViolation(ScheduleNotCompact, penalty, "idle gap between consecutive classes", idxs[k-1], idxs[k]))
			}
		}
	}
	return out
}

func checkBalancedLoad(p *Problem, a []Assignment) []Violation {
	if p.Constraints.BalancedDailyLoadWeight <= 0 {
		return nil
	}
	var out []Violation
	byGroup := groupIndicesByKey(a, func(x Assignment) string { return x.GroupID })
	for groupID, idxs := range byGroup {
		loadByDay := make(map[Day]int)
		for _, i := range idxs {
			loadByDay[a[i].Day] += a[i].EndMin - a[i].StartMin
		}
		if len(loadByDay) < 2 {
			continue
		}
		var total float64
		for _, mins := range loadByDay {
			total += float64(mins)
		}
		mean := total / float64(len(loadByDay))
		var mad float64
		for _, mins := range loadByDay {
			mad += math.Abs(float64(mins) - mean)
		}
		mad /= float64(len(loadByDay))
		if mad > 0 {
			penalty := p.Constraints.BalancedDailyLoadWeight * mad / 60.0
			out = append(out, softViolation(DailyLoadImbalance, penalty, "daily instructional load unevenly spread across the week for group "+groupID, idxs...))
		}
	}
	return out
}

func checkPreferredRooms(p *Problem, a []Assignment) []Violation {
	if p.Constraints.PreferredRoomsWeight <= 0 {
		return nil
	}
	var out []Violation
	for i, x := range a {
		course, ok := p.CourseByID(x.CourseID)
		if !ok || len(course.PreferredRoomIDs) == 0 {
			continue // §9: absent preference list charges zero penalty
		}
		if !contains(course.PreferredRoomIDs, x.RoomID) {
			out = append(out, softViolation(PreferredRoomMiss, p.Constraints.PreferredRoomsWeight, "assignment did not use a preferred room", i))
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func groupIndicesByKey(a []Assignment, key func(Assignment) string) map[string][]int {
	out := make(map[string][]int)
	for i, x := range a {
		k := key(x)
		out[k] = append(out[k], i)
	}
	return out
}

func groupIndicesByKeyDay(a []Assignment, key func(Assignment) string) map[string][]int {
	type bucketKey struct {
		k   string
		day Day
	}
	buckets := make(map[bucketKey][]int)
	for i, x := range a {
		bk := bucketKey{key(x), x.Day}
		buckets[bk] = append(buckets[bk], i)
	}
	out := make(map[string][]int, len(buckets))
	for bk, idxs := range buckets {
		out[bk.k+"|"+bk.day.String()] = idxs
	}
	return out
}

// CheckEdit re-evaluates only the neighbourhood of a proposed single
// assignment edit: the edited assignment itself plus every assignment that
// shares its room, instructor, or group on the resulting day, per §4.4's
// incremental checker. Per §4.4, the reported conflicts are exactly the
// HARD violations newly introduced by the edit relative to the unedited
// solution over that same neighbourhood — SOFT violations and HARD
// violations that already existed before the edit are not conflicts.
func CheckEdit(p *Problem, assignments []Assignment, edit Edit) Report {
	if edit.Index < 0 || edit.Index >= len(assignments) {
		return buildReport([]Violation{hardViolation(CourseUnassigned, "edit index out of range")})
	}

	edited := make([]Assignment, len(assignments))
	copy(edited, assignments)
	target := edited[edit.Index]
	target.Day = edit.Day
	target.StartMin = edit.StartMin
	target.EndMin = edit.EndMin
	if edit.RoomID != "" {
		target.RoomID = edit.RoomID
	}
	if edit.InstructorID != "" {
		target.InstructorID = edit.InstructorID
	}
	edited[edit.Index] = target

	neighbourhood := neighbourhoodIndices(edited, edit.Index)
	before := remapViolations(evaluateScope(p, scopeAssignments(assignments, neighbourhood), false).Violations, neighbourhood)
	after := remapViolations(evaluateScope(p, scopeAssignments(edited, neighbourhood), false).Violations, neighbourhood)

	preexisting := make(map[string]bool, len(before))
	for _, v := range before {
		if v.Severity == Hard {
			preexisting[violationKey(v)] = true
		}
	}

	introduced := make([]Violation, 0, len(after))
	for _, v := range after {
		if v.Severity != Hard {
			continue
		}
		if !preexisting[violationKey(v)] {
			introduced = append(introduced, v)
		}
	}

	return buildReport(introduced)
}

// scopeAssignments extracts the assignments at the given indices, in order.
func scopeAssignments(a []Assignment, indices []int) []Assignment {
	scoped := make([]Assignment, len(indices))
	for i, idx := range indices {
		scoped[i] = a[idx]
	}
	return scoped
}

// remapViolations rewrites each violation's AffectedAssignmentIndices from
// neighbourhood-scoped positions back to indices into the original
// assignment slice.
func remapViolations(violations []Violation, neighbourhood []int) []Violation {
	out := make([]Violation, len(violations))
	for i, v := range violations {
		mapped := make([]int, len(v.AffectedAssignmentIndices))
		for j, scopedIdx := range v.AffectedAssignmentIndices {
			mapped[j] = neighbourhood[scopedIdx]
		}
		v.AffectedAssignmentIndices = mapped
		out[i] = v
	}
	return out
}

// violationKey identifies a violation by kind and the (sorted, original-
// index) set of assignments it implicates, so the same conflict can be
// recognised across the before/after neighbourhood evaluations.
func violationKey(v Violation) string {
	idx := append([]int(nil), v.AffectedAssignmentIndices...)
	sort.Ints(idx)
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}
	return string(v.Kind) + "|" + strings.Join(parts, ",")
}

func neighbourhoodIndices(a []Assignment, center int) []int {
	target := a[center]
	seen := map[int]bool{center: true}
	for i, x := range a {
		if i == center {
			continue
		}
		if x.Day == target.Day && (x.RoomID == target.RoomID || x.InstructorID == target.InstructorID || x.GroupID == target.GroupID) {
			seen[i] = true
		}
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
