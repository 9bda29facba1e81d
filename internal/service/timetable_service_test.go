package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusforge/timetable-scheduler/internal/dto"
	"github.com/campusforge/timetable-scheduler/internal/models"
	"github.com/campusforge/timetable-scheduler/internal/solver"
	"github.com/campusforge/timetable-scheduler/pkg/jobs"
)

type fakeTimetableRepository struct {
	mu          sync.Mutex
	runs        map[string]*models.TimetableRun
	assignments map[string][]models.TimetableAssignmentRow
	violations  map[string][]models.TimetableViolationRow
}

func newFakeTimetableRepository() *fakeTimetableRepository {
	return &fakeTimetableRepository{
		runs:        make(map[string]*models.TimetableRun),
		assignments: make(map[string][]models.TimetableAssignmentRow),
		violations:  make(map[string][]models.TimetableViolationRow),
	}
}

func (f *fakeTimetableRepository) Create(_ context.Context, run *models.TimetableRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run.ID == "" {
		run.ID = "run-generated"
	}
	copy := *run
	f.runs[run.ID] = &copy
	return nil
}

func (f *fakeTimetableRepository) FindByID(_ context.Context, id string) (*models.TimetableRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, assert.AnError
	}
	copy := *run
	return &copy, nil
}

func (f *fakeTimetableRepository) FindByInputDigest(_ context.Context, digest string) (*models.TimetableRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.InputDigest == digest {
			copy := *run
			return &copy, nil
		}
	}
	return nil, assert.AnError
}

func (f *fakeTimetableRepository) UpdateStatus(_ context.Context, id string, status models.TimetableRunStatus, errorCode, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return assert.AnError
	}
	run.Status = status
	run.ErrorCode = errorCode
	run.ErrorMessage = errorMessage
	return nil
}

func (f *fakeTimetableRepository) SaveResult(_ context.Context, runID string, status models.TimetableRunStatus, fitness float64, hardCount int, assignments []models.TimetableAssignmentRow, violations []models.TimetableViolationRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return assert.AnError
	}
	run.Status = status
	run.Fitness = fitness
	run.HardViolationCount = hardCount
	f.assignments[runID] = assignments
	f.violations[runID] = violations
	return nil
}

func (f *fakeTimetableRepository) ListAssignments(_ context.Context, runID string) ([]models.TimetableAssignmentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assignments[runID], nil
}

func (f *fakeTimetableRepository) ListViolations(_ context.Context, runID string) ([]models.TimetableViolationRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations[runID], nil
}

func sampleGenerateRequest() dto.GenerateRequest {
	return dto.GenerateRequest{
		Courses: []dto.CourseInput{
			{ID: "course-1", DurationMin: 60, InstructorIDs: []string{"inst-1"}, GroupIDs: []string{"group-1"}},
		},
		Instructors: []dto.InstructorInput{
			{ID: "inst-1", Availability: map[string][]dto.IntervalInput{"MONDAY": {{Start: "08:00", End: "17:00"}}}},
		},
		Rooms:  []dto.RoomInput{{ID: "room-1", Capacity: 30}},
		Groups: []dto.StudentGroupInput{{ID: "group-1", Size: 20}},
		Constraints: dto.ConstraintConfigInput{
			NoRoomDoubleBooking:       true,
			NoInstructorDoubleBooking: true,
			WorkingHoursOnly:          true,
			WorkingHoursStart:         "08:00",
			WorkingHoursEnd:           "17:00",
		},
	}
}

func solverParamsForTest() solver.Params {
	return solver.Params{InitialTemperature: 100, CoolingRate: 0.95, MinTemperature: 0.01}
}

func newTestService(repo TimetableRepository) *TimetableService {
	return NewTimetableService(repo, nil, NewMetricsService(), nil,
		solverParamsForTest(),
		TimeLimits{Default: 10 * time.Second, Min: 1 * time.Second, Max: 60 * time.Second},
		time.Minute,
		jobs.QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 0, RetryDelay: time.Millisecond},
	)
}

func TestTimetableServiceCreateRejectsInvalidInput(t *testing.T) {
	svc := newTestService(newFakeTimetableRepository())

	req := sampleGenerateRequest()
	req.Courses[0].InstructorIDs = []string{"ghost"}

	_, err := svc.Create(context.Background(), "broken", req)
	assert.Error(t, err)
}

func TestTimetableServiceCreatePersistsDraft(t *testing.T) {
	svc := newTestService(newFakeTimetableRepository())

	run, err := svc.Create(context.Background(), "fall-2026-cs", sampleGenerateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.TimetableRunStatusDraft, run.Status)
	assert.NotEmpty(t, run.InputDigest)
}

func TestTimetableServiceGenerateRequiresDraftStatus(t *testing.T) {
	repo := newFakeTimetableRepository()
	svc := newTestService(repo)
	svc.Start(context.Background())
	defer svc.Stop()

	run, err := svc.Create(context.Background(), "fall-2026-cs", sampleGenerateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Generate(context.Background(), run.ID))
	err = svc.Generate(context.Background(), run.ID)
	assert.Error(t, err, "a run already out of DRAFT cannot be generated again")
}

func TestTimetableServiceValidateAcceptsConflictFreeSchedule(t *testing.T) {
	svc := newTestService(newFakeTimetableRepository())

	req := dto.ValidateRequest{
		GenerateRequest: sampleGenerateRequest(),
		Assignments: []dto.AssignmentIO{
			{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: "MONDAY", StartTime: "09:00", EndTime: "10:00"},
		},
	}
	resp, err := svc.Validate(req)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Empty(t, resp.Conflicts)
}

func TestTimetableServiceCheckEditDetectsConflict(t *testing.T) {
	svc := newTestService(newFakeTimetableRepository())

	req := sampleGenerateRequest()
	req.Instructors = append(req.Instructors, dto.InstructorInput{
		ID: "inst-2", Availability: map[string][]dto.IntervalInput{"MONDAY": {{Start: "08:00", End: "17:00"}}},
	})
	req.Groups = append(req.Groups, dto.StudentGroupInput{ID: "group-2", Size: 10})
	req.Courses = append(req.Courses, dto.CourseInput{ID: "course-2", DurationMin: 60, InstructorIDs: []string{"inst-2"}, GroupIDs: []string{"group-2"}})

	checkReq := dto.CheckEditRequest{
		ProblemSnapshot: req,
		CurrentAssignments: []dto.AssignmentIO{
			{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: "MONDAY", StartTime: "10:00", EndTime: "11:00"},
			{CourseID: "course-2", InstructorID: "inst-2", RoomID: "room-1", GroupID: "group-2", Day: "MONDAY", StartTime: "09:00", EndTime: "10:00"},
		},
		Edit: dto.EditInput{Index: 1, Day: "MONDAY", StartTime: "10:00", EndTime: "11:00", RoomID: "room-1", InstructorID: "inst-2"},
	}

	resp, err := svc.CheckEdit(checkReq)
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "ROOM_DOUBLE_BOOKING", resp.Conflicts[0].Kind)
}

func TestTimetableServicePublishRequiresGeneratedStatus(t *testing.T) {
	repo := newFakeTimetableRepository()
	svc := newTestService(repo)

	run, err := svc.Create(context.Background(), "fall-2026-cs", sampleGenerateRequest())
	require.NoError(t, err)

	err = svc.Publish(context.Background(), run.ID)
	assert.Error(t, err, "a DRAFT run cannot be published")

	require.NoError(t, repo.UpdateStatus(context.Background(), run.ID, models.TimetableRunStatusGenerated, "", ""))
	assert.NoError(t, svc.Publish(context.Background(), run.ID))
}

func TestTimetableServiceArchiveAcceptsAnyStatus(t *testing.T) {
	repo := newFakeTimetableRepository()
	svc := newTestService(repo)

	run, err := svc.Create(context.Background(), "fall-2026-cs", sampleGenerateRequest())
	require.NoError(t, err)
	assert.NoError(t, svc.Archive(context.Background(), run.ID))

	stored, err := repo.FindByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TimetableRunStatusArchived, stored.Status)
}
