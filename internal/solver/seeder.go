package solver

import "sort"

// Seed builds an initial, not-necessarily-feasible assignment set using a
// deterministic greedy placement per §4.2: pairs are visited largest-first
// (group size descending, then course duration descending, then course id
// ascending, step 2), and each is placed in the first day/time/instructor/
// room combination that keeps it free of room, instructor, and group
// double bookings. A pair that exhausts every combination is left out of
// the result, and Evaluate charges it a COURSE_UNASSIGNED penalty. The
// optimizer's moves only alter existing assignments, so such a pair stays
// unassigned for the rest of the solve.
func Seed(p *Problem) []Assignment {
	occ := newOccupancy()
	pairs := sortedPairs(p)
	assignments := make([]Assignment, 0, len(pairs))

	for _, pair := range pairs {
		course, ok := p.CourseByID(pair.CourseID)
		if !ok {
			continue
		}
		a, placed := placeGreedy(p, course, pair.GroupID, occ)
		if placed {
			occ.reserve(a)
			assignments = append(assignments, a)
		}
	}

	return assignments
}

// sortedPairs returns p.Pairs ordered by (group size desc, course duration
// desc, course id asc), per §4.2 step 2. p.Pairs itself is left untouched.
func sortedPairs(p *Problem) []CourseGroupPair {
	pairs := make([]CourseGroupPair, len(p.Pairs))
	copy(pairs, p.Pairs)
	sort.SliceStable(pairs, func(i, j int) bool {
		gi, _ := p.GroupByID(pairs[i].GroupID)
		gj, _ := p.GroupByID(pairs[j].GroupID)
		if gi.Size != gj.Size {
			return gi.Size > gj.Size
		}
		ci, _ := p.CourseByID(pairs[i].CourseID)
		cj, _ := p.CourseByID(pairs[j].CourseID)
		if ci.DurationMin != cj.DurationMin {
			return ci.DurationMin > cj.DurationMin
		}
		return pairs[i].CourseID < pairs[j].CourseID
	})
	return pairs
}

// occupancy tracks, per resource id and day, the intervals already claimed
// by the seeder so far, so later placements can be checked in O(k) against
// only that resource's existing bookings rather than the whole schedule.
type occupancy struct {
	rooms       map[string]map[Day][]TimeInterval
	instructors map[string]map[Day][]TimeInterval
	groups      map[string]map[Day][]TimeInterval
}

func newOccupancy() *occupancy {
	return &occupancy{
		rooms:       make(map[string]map[Day][]TimeInterval),
		instructors: make(map[string]map[Day][]TimeInterval),
		groups:      make(map[string]map[Day][]TimeInterval),
	}
}

func (o *occupancy) reserve(a Assignment) {
	claim(o.rooms, a.RoomID, a.Day, a.Interval())
	claim(o.instructors, a.InstructorID, a.Day, a.Interval())
	claim(o.groups, a.GroupID, a.Day, a.Interval())
}

func (o *occupancy) release(a Assignment) {
	unclaim(o.rooms, a.RoomID, a.Day, a.Interval())
	unclaim(o.instructors, a.InstructorID, a.Day, a.Interval())
	unclaim(o.groups, a.GroupID, a.Day, a.Interval())
}

func (o *occupancy) free(id string, byKey map[string]map[Day][]TimeInterval, day Day, want TimeInterval) bool {
	for _, existing := range byKey[id][day] {
		if existing.Overlaps(want) {
			return false
		}
	}
	return true
}

func claim(m map[string]map[Day][]TimeInterval, id string, day Day, iv TimeInterval) {
	if m[id] == nil {
		m[id] = make(map[Day][]TimeInterval)
	}
	m[id][day] = append(m[id][day], iv)
}

func unclaim(m map[string]map[Day][]TimeInterval, id string, day Day, iv TimeInterval) {
	slots := m[id][day]
	for i, existing := range slots {
		if existing == iv {
			m[id][day] = append(slots[:i], slots[i+1:]...)
			return
		}
	}
}

// placeGreedy scans days, time slots, instructors, and rooms in that
// deterministic nesting order and returns the first combination free of
// double bookings.
func placeGreedy(p *Problem, course Course, groupID string, occ *occupancy) (Assignment, bool) {
	rooms := p.SuitableRooms(course.ID)
	if len(rooms) == 0 || len(course.InstructorIDs) == 0 {
		return Assignment{}, false
	}

	for _, day := range sortedDays(nil) {
		for _, start := range p.TimeSlots() {
			end := start + course.DurationMin
			if end > p.Constraints.WorkingHoursEnd {
				continue
			}
			want := TimeInterval{Start: start, End: end}

			if !occ.free(groupID, occ.groups, day, want) {
				continue
			}

			for _, instructorID := range course.InstructorIDs {
				if !p.InstructorFree(instructorID, day, start, end) {
					continue
				}
				if !occ.free(instructorID, occ.instructors, day, want) {
					continue
				}

				for _, room := range rooms {
					if !occ.free(room.ID, occ.rooms, day, want) {
						continue
					}
					return Assignment{
						CourseID:     course.ID,
						InstructorID: instructorID,
						RoomID:       room.ID,
						GroupID:      groupID,
						Day:          day,
						StartMin:     start,
						EndMin:       end,
					}, true
				}
			}
		}
	}

	return Assignment{}, false
}
