package solver

import (
	"fmt"
	"sort"
)

// Problem is the immutable input bundle for a solve call: courses,
// instructors, rooms, groups, and the constraint configuration, plus the
// id-indexed lookups and precomputed caches described in §4.1. A Problem is
// built once via NewProblem and never mutated afterwards; it is safe to
// share across concurrent solve calls.
type Problem struct {
	Courses      []Course
	Instructors  []Instructor
	Rooms        []Room
	Groups       []StudentGroup
	Constraints  ConstraintConfig

	coursesByID     map[string]Course
	instructorsByID map[string]Instructor
	roomsByID       map[string]Room
	groupsByID      map[string]StudentGroup

	// Pairs is every (course, group) scheduling obligation, in a stable
	// order derived from input order.
	Pairs []CourseGroupPair

	suitableRooms map[string][]Room // course id -> ordered candidate rooms
	timeSlots     []int             // ordered start-min grid points inside the working window
}

// CourseByID, InstructorByID, RoomByID, GroupByID give O(1) lookups.
func (p *Problem) CourseByID(id string) (Course, bool)         { c, ok := p.coursesByID[id]; return c, ok }
func (p *Problem) InstructorByID(id string) (Instructor, bool) { i, ok := p.instructorsByID[id]; return i, ok }
func (p *Problem) RoomByID(id string) (Room, bool)             { r, ok := p.roomsByID[id]; return r, ok }
func (p *Problem) GroupByID(id string) (StudentGroup, bool)    { g, ok := p.groupsByID[id]; return g, ok }

// SuitableRooms returns the ordered candidate rooms for a course, per §4.1:
// capacity at least the largest enrolled group, and (when room_type_match
// is enabled and the course requires one) a matching room type.
func (p *Problem) SuitableRooms(courseID string) []Room {
	return p.suitableRooms[courseID]
}

// TimeSlots returns the ordered start-minute grid points inside the working
// window.
func (p *Problem) TimeSlots() []int {
	return p.timeSlots
}

// WorkingWindow returns the configured working-hours interval.
func (p *Problem) WorkingWindow() TimeInterval {
	return TimeInterval{Start: p.Constraints.WorkingHoursStart, End: p.Constraints.WorkingHoursEnd}
}

// InstructorFree reports whether [start,end) is fully available for the
// instructor on the given day: contained in the union of that day's
// availability intervals, and inside working hours when
// working_hours_only is enabled.
func (p *Problem) InstructorFree(instructorID string, day Day, start, end int) bool {
	instructor, ok := p.instructorsByID[instructorID]
	if !ok {
		return false
	}
	want := TimeInterval{Start: start, End: end}
	if p.Constraints.WorkingHoursOnly && !p.WorkingWindow().Contains(want) {
		return false
	}
	for _, interval := range instructor.Availability[day] {
		if interval.Contains(want) {
			return true
		}
	}
	return false
}

// NewProblem validates the input bundle against the §3 invariants and
// builds the precomputed caches of §4.1. It fails fast with a plain
// descriptive error before any search work begins; the service layer maps
// that error to INVALID_INPUT.
func NewProblem(courses []Course, instructors []Instructor, rooms []Room, groups []StudentGroup, constraints ConstraintConfig) (*Problem, error) {
	p := &Problem{
		Courses:         courses,
		Instructors:     instructors,
		Rooms:           rooms,
		Groups:          groups,
		Constraints:     constraints,
		coursesByID:     make(map[string]Course, len(courses)),
		instructorsByID: make(map[string]Instructor, len(instructors)),
		roomsByID:       make(map[string]Room, len(rooms)),
		groupsByID:      make(map[string]StudentGroup, len(groups)),
		suitableRooms:   make(map[string][]Room, len(courses)),
	}

	if constraints.WorkingHoursEnd-constraints.WorkingHoursStart < 120 {
		return nil, fmt.Errorf("working hours window must span at least 120 minutes")
	}
	if constraints.WorkingHoursStart >= constraints.WorkingHoursEnd {
		return nil, fmt.Errorf("working_hours_start must be before working_hours_end")
	}

	for _, r := range rooms {
		if r.Capacity < 1 {
			return nil, fmt.Errorf("room %s: capacity must be >= 1", r.ID)
		}
		if _, dup := p.roomsByID[r.ID]; dup {
			return nil, fmt.Errorf("room %s: duplicate id", r.ID)
		}
		p.roomsByID[r.ID] = r
	}

	for _, g := range groups {
		if g.Size < 1 {
			return nil, fmt.Errorf("group %s: size must be >= 1", g.ID)
		}
		if _, dup := p.groupsByID[g.ID]; dup {
			return nil, fmt.Errorf("group %s: duplicate id", g.ID)
		}
		p.groupsByID[g.ID] = g
	}

	for _, inst := range instructors {
		if _, dup := p.instructorsByID[inst.ID]; dup {
			return nil, fmt.Errorf("instructor %s: duplicate id", inst.ID)
		}
		for day, intervals := range inst.Availability {
			for _, iv := range intervals {
				if iv.Start < 0 || iv.End > 24*60 || iv.Start >= iv.End {
					return nil, fmt.Errorf("instructor %s: invalid availability interval on %s", inst.ID, day)
				}
			}
		}
		p.instructorsByID[inst.ID] = inst
	}

	for _, c := range courses {
		if c.DurationMin < slotMinutes {
			return nil, fmt.Errorf("course %s: duration must be >= %d minutes", c.ID, slotMinutes)
		}
		if !alignedToGrid(c.DurationMin) {
			return nil, fmt.Errorf("course %s: duration must be a multiple of %d minutes", c.ID, slotMinutes)
		}
		if _, dup := p.coursesByID[c.ID]; dup {
			return nil, fmt.Errorf("course %s: duplicate id", c.ID)
		}
		for _, iid := range c.InstructorIDs {
			if _, ok := p.instructorsByID[iid]; !ok {
				return nil, fmt.Errorf("course %s: unknown instructor %s", c.ID, iid)
			}
		}
		for _, gid := range c.GroupIDs {
			if _, ok := p.groupsByID[gid]; !ok {
				return nil, fmt.Errorf("course %s: unknown group %s", c.ID, gid)
			}
		}
		p.coursesByID[c.ID] = c
	}

	for _, c := range courses {
		p.suitableRooms[c.ID] = computeSuitableRooms(c, rooms, p.groupsByID, constraints.RoomTypeMatch)
		for _, gid := range c.GroupIDs {
			p.Pairs = append(p.Pairs, CourseGroupPair{CourseID: c.ID, GroupID: gid})
		}
	}

	p.timeSlots = computeTimeSlots(constraints)

	return p, nil
}

func computeSuitableRooms(c Course, rooms []Room, groupsByID map[string]StudentGroup, roomTypeMatch bool) []Room {
	maxSize := 0
	for _, gid := range c.GroupIDs {
		if g, ok := groupsByID[gid]; ok && g.Size > maxSize {
			maxSize = g.Size
		}
	}
	out := make([]Room, 0, len(rooms))
	for _, r := range rooms {
		if r.Capacity < maxSize {
			continue
		}
		if roomTypeMatch && c.RequiredRoomType != "" && r.Type != c.RequiredRoomType {
			continue
		}
		out = append(out, r)
	}
	return out
}

func computeTimeSlots(constraints ConstraintConfig) []int {
	var slots []int
	for t := constraints.WorkingHoursStart; t+slotMinutes <= constraints.WorkingHoursEnd; t += slotMinutes {
		slots = append(slots, t)
	}
	sort.Ints(slots)
	return slots
}
