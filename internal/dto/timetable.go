package dto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/campusforge/timetable-scheduler/internal/solver"
)

// IntervalInput is a single day's availability window on the wire, in
// "HH:MM" form.
type IntervalInput struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

// CourseInput is the wire shape of solver.Course.
type CourseInput struct {
	ID               string   `json:"id" binding:"required"`
	Code             string   `json:"code"`
	Title            string   `json:"title"`
	DurationMin      int      `json:"duration_min" binding:"required"`
	RequiredRoomType string   `json:"required_room_type"`
	InstructorIDs    []string `json:"instructor_ids" binding:"required,min=1"`
	GroupIDs         []string `json:"group_ids" binding:"required,min=1"`
	PreferredRoomIDs []string `json:"preferred_room_ids"`
}

// InstructorInput is the wire shape of solver.Instructor.
type InstructorInput struct {
	ID                string                     `json:"id" binding:"required"`
	Name              string                     `json:"name"`
	TeachingLoadHours float64                    `json:"teaching_load_hours"`
	Availability      map[string][]IntervalInput `json:"availability"`
	PreferredDays     []string                   `json:"preferred_days"`
	PreferredTimes    []string                   `json:"preferred_times"`
}

// RoomInput is the wire shape of solver.Room.
type RoomInput struct {
	ID        string          `json:"id" binding:"required"`
	Name      string          `json:"name"`
	Capacity  int             `json:"capacity" binding:"required"`
	Type      string          `json:"type"`
	Equipment map[string]bool `json:"equipment"`
}

// StudentGroupInput is the wire shape of solver.StudentGroup.
type StudentGroupInput struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
	Size int    `json:"size" binding:"required"`
}

// ConstraintConfigInput is the wire shape of solver.ConstraintConfig.
type ConstraintConfigInput struct {
	NoRoomDoubleBooking       bool `json:"no_room_double_booking"`
	NoInstructorDoubleBooking bool `json:"no_instructor_double_booking"`
	RoomCapacityCheck         bool `json:"room_capacity_check"`
	RoomTypeMatch             bool `json:"room_type_match"`
	WorkingHoursOnly          bool `json:"working_hours_only"`

	InstructorPreferences float64 `json:"instructor_preferences"`
	CompactSchedules      float64 `json:"compact_schedules"`
	BalancedDailyLoad     float64 `json:"balanced_daily_load"`
	PreferredRooms        float64 `json:"preferred_rooms"`

	WorkingHoursStart string `json:"working_hours_start" binding:"required"`
	WorkingHoursEnd   string `json:"working_hours_end" binding:"required"`
}

// GenerateRequest is the body of POST /api/v1/timetables.
type GenerateRequest struct {
	Courses          []CourseInput         `json:"courses" binding:"required,min=1,dive"`
	Instructors      []InstructorInput     `json:"instructors" binding:"required,dive"`
	Rooms            []RoomInput           `json:"rooms" binding:"required,dive"`
	Groups           []StudentGroupInput   `json:"groups" binding:"required,dive"`
	Constraints      ConstraintConfigInput `json:"constraints" binding:"required"`
	TimeLimitSeconds *int                  `json:"time_limit_seconds"`
}

// AssignmentIO is the wire shape of solver.Assignment, used both as
// generate/validate output and as validate/check_edit input.
type AssignmentIO struct {
	CourseID     string `json:"course_id"`
	InstructorID string `json:"instructor_id"`
	RoomID       string `json:"room_id"`
	GroupID      string `json:"group_id"`
	Day          string `json:"day"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

// ViolationOutput is the wire shape of solver.Violation.
type ViolationOutput struct {
	Kind                      string  `json:"kind"`
	Severity                  string  `json:"severity"`
	Penalty                   float64 `json:"penalty"`
	Description               string  `json:"description"`
	AffectedAssignmentIndices []int   `json:"affected_assignment_indices"`
}

// GenerateResponse is the generate-shaped result of a finished run: it is
// what the result cache stores and what the GET-by-id poll returns.
type GenerateResponse struct {
	Success          bool              `json:"success"`
	Assignments      []AssignmentIO    `json:"assignments"`
	FitnessScore     *float64          `json:"fitness_score"`
	Violations       []ViolationOutput `json:"violations"`
	SolveTimeSeconds float64           `json:"solve_time_seconds"`
	Message          string            `json:"message"`
}

// ValidateRequest is the body of POST /api/v1/timetables/validate.
type ValidateRequest struct {
	GenerateRequest
	Assignments []AssignmentIO `json:"assignments" binding:"required,dive"`
}

// ValidateResponse is the output of validate.
type ValidateResponse struct {
	IsValid   bool              `json:"is_valid"`
	Conflicts []ViolationOutput `json:"conflicts"`
}

// EditInput is the wire shape of solver.Edit.
type EditInput struct {
	Index        int    `json:"index"`
	Day          string `json:"day" binding:"required"`
	StartTime    string `json:"start_time" binding:"required"`
	EndTime      string `json:"end_time" binding:"required"`
	RoomID       string `json:"room_id"`
	InstructorID string `json:"instructor_id"`
}

// CheckEditRequest is the input of the stateless TimetableService.CheckEdit.
// The HTTP check-edit endpoint takes only an EditInput body and builds this
// request from the run's stored problem and assignments.
type CheckEditRequest struct {
	ProblemSnapshot    GenerateRequest `json:"problem_snapshot" binding:"required"`
	CurrentAssignments []AssignmentIO  `json:"current_assignments" binding:"required,dive"`
	Edit               EditInput       `json:"edit" binding:"required"`
}

// CheckEditResponse is the output of check_edit.
type CheckEditResponse struct {
	Conflicts []ViolationOutput `json:"conflicts"`
}

// ToSolverProblem converts a generate-payload-shaped request into the
// solver's in-memory Problem, returning the same error a malformed "HH:MM"
// value or unknown day name would raise downstream, but earlier.
func (r GenerateRequest) ToSolverProblem() (*solver.Problem, error) {
	courses := make([]solver.Course, len(r.Courses))
	for i, c := range r.Courses {
		courses[i] = solver.Course{
			ID:               c.ID,
			Code:             c.Code,
			Title:            c.Title,
			DurationMin:      c.DurationMin,
			RequiredRoomType: c.RequiredRoomType,
			InstructorIDs:    c.InstructorIDs,
			GroupIDs:         c.GroupIDs,
			PreferredRoomIDs: c.PreferredRoomIDs,
		}
	}

	instructors := make([]solver.Instructor, len(r.Instructors))
	for i, in := range r.Instructors {
		availability := make(map[solver.Day][]solver.TimeInterval, len(in.Availability))
		for dayName, intervals := range in.Availability {
			day, ok := solver.ParseDay(strings.ToUpper(dayName))
			if !ok {
				return nil, fmt.Errorf("instructor %s: unknown day %q", in.ID, dayName)
			}
			converted := make([]solver.TimeInterval, len(intervals))
			for j, iv := range intervals {
				start, err := ParseClock(iv.Start)
				if err != nil {
					return nil, fmt.Errorf("instructor %s: %w", in.ID, err)
				}
				end, err := ParseClock(iv.End)
				if err != nil {
					return nil, fmt.Errorf("instructor %s: %w", in.ID, err)
				}
				converted[j] = solver.TimeInterval{Start: start, End: end}
			}
			availability[day] = converted
		}

		preferredDays := make(map[solver.Day]bool, len(in.PreferredDays))
		for _, d := range in.PreferredDays {
			day, ok := solver.ParseDay(strings.ToUpper(d))
			if !ok {
				return nil, fmt.Errorf("instructor %s: unknown preferred day %q", in.ID, d)
			}
			preferredDays[day] = true
		}

		instructors[i] = solver.Instructor{
			ID:                in.ID,
			Name:              in.Name,
			TeachingLoadHours: in.TeachingLoadHours,
			Availability:      availability,
			Preferences: solver.InstructorPreferences{
				PreferredDays:  preferredDays,
				PreferredTimes: in.PreferredTimes,
			},
		}
	}

	rooms := make([]solver.Room, len(r.Rooms))
	for i, rm := range r.Rooms {
		rooms[i] = solver.Room{ID: rm.ID, Name: rm.Name, Capacity: rm.Capacity, Type: rm.Type, Equipment: rm.Equipment}
	}

	groups := make([]solver.StudentGroup, len(r.Groups))
	for i, g := range r.Groups {
		groups[i] = solver.StudentGroup{ID: g.ID, Name: g.Name, Size: g.Size}
	}

	workingStart, err := ParseClock(r.Constraints.WorkingHoursStart)
	if err != nil {
		return nil, err
	}
	workingEnd, err := ParseClock(r.Constraints.WorkingHoursEnd)
	if err != nil {
		return nil, err
	}

	constraints := solver.ConstraintConfig{
		NoRoomDoubleBooking:         r.Constraints.NoRoomDoubleBooking,
		NoInstructorDoubleBooking:   r.Constraints.NoInstructorDoubleBooking,
		RoomCapacityCheck:           r.Constraints.RoomCapacityCheck,
		RoomTypeMatch:               r.Constraints.RoomTypeMatch,
		WorkingHoursOnly:            r.Constraints.WorkingHoursOnly,
		InstructorPreferencesWeight: r.Constraints.InstructorPreferences,
		CompactSchedulesWeight:      r.Constraints.CompactSchedules,
		BalancedDailyLoadWeight:     r.Constraints.BalancedDailyLoad,
		PreferredRoomsWeight:        r.Constraints.PreferredRooms,
		WorkingHoursStart:           workingStart,
		WorkingHoursEnd:             workingEnd,
	}

	return solver.NewProblem(courses, instructors, rooms, groups, constraints)
}

// ToSolverAssignments converts wire assignments into solver.Assignment
// values.
func ToSolverAssignments(in []AssignmentIO) ([]solver.Assignment, error) {
	out := make([]solver.Assignment, len(in))
	for i, a := range in {
		day, ok := solver.ParseDay(strings.ToUpper(a.Day))
		if !ok {
			return nil, fmt.Errorf("assignment %d: unknown day %q", i, a.Day)
		}
		start, err := ParseClock(a.StartTime)
		if err != nil {
			return nil, fmt.Errorf("assignment %d: %w", i, err)
		}
		end, err := ParseClock(a.EndTime)
		if err != nil {
			return nil, fmt.Errorf("assignment %d: %w", i, err)
		}
		out[i] = solver.Assignment{
			CourseID:     a.CourseID,
			InstructorID: a.InstructorID,
			RoomID:       a.RoomID,
			GroupID:      a.GroupID,
			Day:          day,
			StartMin:     start,
			EndMin:       end,
		}
	}
	return out, nil
}

// FromSolverAssignments converts solver.Assignment values back to their
// wire form.
func FromSolverAssignments(in []solver.Assignment) []AssignmentIO {
	out := make([]AssignmentIO, len(in))
	for i, a := range in {
		out[i] = AssignmentIO{
			CourseID:     a.CourseID,
			InstructorID: a.InstructorID,
			RoomID:       a.RoomID,
			GroupID:      a.GroupID,
			Day:          a.Day.String(),
			StartTime:    formatClock(a.StartMin),
			EndTime:      formatClock(a.EndMin),
		}
	}
	return out
}

// FromSolverViolations converts solver.Violation values to their wire form.
func FromSolverViolations(in []solver.Violation) []ViolationOutput {
	out := make([]ViolationOutput, len(in))
	for i, v := range in {
		out[i] = ViolationOutput{
			Kind:                      string(v.Kind),
			Severity:                  string(v.Severity),
			Penalty:                   v.Penalty,
			Description:               v.Description,
			AffectedAssignmentIndices: v.AffectedAssignmentIndices,
		}
	}
	return out
}

// ParseClock converts an "HH:MM" wire value into minutes since midnight.
func ParseClock(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid HH:MM value %q", hhmm)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", hhmm)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", hhmm)
	}
	if hours < 0 || hours > 24 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid HH:MM value %q", hhmm)
	}
	return hours*60 + minutes, nil
}

func formatClock(totalMin int) string {
	return fmt.Sprintf("%02d:%02d", totalMin/60, totalMin%60)
}
