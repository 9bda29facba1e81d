package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusforge/timetable-scheduler/internal/dto"
	"github.com/campusforge/timetable-scheduler/internal/models"
	"github.com/campusforge/timetable-scheduler/internal/solver"
	"github.com/campusforge/timetable-scheduler/pkg/jobs"

	appErrors "github.com/campusforge/timetable-scheduler/pkg/errors"
)

const jobTypeGenerate = "timetable.generate"

// TimetableRepository abstracts the persistence operations the service
// depends on.
type TimetableRepository interface {
	Create(ctx context.Context, run *models.TimetableRun) error
	FindByID(ctx context.Context, id string) (*models.TimetableRun, error)
	FindByInputDigest(ctx context.Context, digest string) (*models.TimetableRun, error)
	UpdateStatus(ctx context.Context, id string, status models.TimetableRunStatus, errorCode, errorMessage string) error
	SaveResult(ctx context.Context, runID string, status models.TimetableRunStatus, fitness float64, hardCount int, assignments []models.TimetableAssignmentRow, violations []models.TimetableViolationRow) error
	ListAssignments(ctx context.Context, runID string) ([]models.TimetableAssignmentRow, error)
	ListViolations(ctx context.Context, runID string) ([]models.TimetableViolationRow, error)
}

// TimeLimits bounds the caller-supplied time_limit_seconds per §6.
type TimeLimits struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// TimetableService owns the §4.5 lifecycle (DRAFT -> GENERATING ->
// GENERATED|DRAFT -> PUBLISHED -> ARCHIVED) around the stateless
// internal/solver core, plus the stateless validate and check_edit
// operations.
type TimetableService struct {
	repo    TimetableRepository
	cache   *CacheService
	metrics *MetricsService
	queue   *jobs.Queue
	logger  *zap.Logger

	params     solver.Params
	timeLimits TimeLimits
	resultTTL  time.Duration
}

// NewTimetableService builds the service and its backing worker pool. The
// queue's handler closes over the service itself, so Start/Stop are the
// only lifecycle calls the caller needs to make.
func NewTimetableService(repo TimetableRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, params solver.Params, timeLimits TimeLimits, resultTTL time.Duration, queueCfg jobs.QueueConfig) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TimetableService{
		repo:       repo,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		params:     params,
		timeLimits: timeLimits,
		resultTTL:  resultTTL,
	}
	queueCfg.Logger = logger
	svc.queue = jobs.NewQueue("timetable-generate", svc.runGenerate, queueCfg)
	return svc
}

// Start launches the background worker pool.
func (s *TimetableService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains and stops the background worker pool.
func (s *TimetableService) Stop() { s.queue.Stop() }

// Create validates the generate payload eagerly (§7 INVALID_INPUT, before
// any search work) and persists a new DRAFT run. A prior run over an
// identical problem (same input digest) is returned as-is rather than
// re-enqueued, making repeated submission of the same payload idempotent.
func (s *TimetableService) Create(ctx context.Context, name string, req dto.GenerateRequest) (*models.TimetableRun, error) {
	if _, err := req.ToSolverProblem(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}

	digest, err := digestRequest(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "unable to normalize problem input")
	}

	if existing, err := s.repo.FindByInputDigest(ctx, digest); err == nil && existing != nil {
		return existing, nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "unable to serialize problem input")
	}

	run := &models.TimetableRun{
		Name:             name,
		Status:           models.TimetableRunStatusDraft,
		InputDigest:      digest,
		Input:            types.JSONText(payload),
		TimeLimitSeconds: int(s.resolveTimeLimit(req.TimeLimitSeconds).Seconds()),
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable run")
	}
	return run, nil
}

// Generate transitions a DRAFT run to GENERATING and enqueues the solve.
// It always enqueues new work; the result cache is not consulted here.
func (s *TimetableService) Generate(ctx context.Context, runID string) error {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable run not found")
	}
	if run.Status != models.TimetableRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("run %s is not in DRAFT status", runID))
	}

	if err := s.repo.UpdateStatus(ctx, runID, models.TimetableRunStatusGenerating, "", ""); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition run to GENERATING")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: runID, Type: jobTypeGenerate, Payload: runID}); err != nil {
		_ = s.repo.UpdateStatus(ctx, runID, models.TimetableRunStatusDraft, appErrors.ErrSolverInternal.Code, err.Error())
		return appErrors.Wrap(err, appErrors.ErrSolverInternal.Code, appErrors.ErrSolverInternal.Status, "failed to enqueue generation job")
	}
	return nil
}

// runGenerate is the jobs.Handler invoked by the worker pool. A
// SOLVER_INTERNAL failure is not retried: the core is a pure function of
// fixed input and would fail identically on a second attempt.
func (s *TimetableService) runGenerate(ctx context.Context, job jobs.Job) error {
	runID, _ := job.Payload.(string)
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		s.logger.Error("generate job: run not found", zap.String("run_id", runID), zap.Error(err))
		return nil
	}

	var req dto.GenerateRequest
	if err := json.Unmarshal(run.Input, &req); err != nil {
		s.failRun(ctx, run, appErrors.ErrSolverInternal.Code, "stored problem input is malformed")
		return nil
	}

	problem, err := req.ToSolverProblem()
	if err != nil {
		s.failRun(ctx, run, appErrors.ErrInvalidInput.Code, err.Error())
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("generate job: solver internal failure",
				zap.String("run_id", run.ID),
				zap.Any("panic", r),
				zap.Int("courses", len(problem.Courses)),
				zap.Int("instructors", len(problem.Instructors)),
				zap.Int("rooms", len(problem.Rooms)),
				zap.Int("groups", len(problem.Groups)),
			)
			s.failRun(ctx, run, appErrors.ErrSolverInternal.Code, appErrors.ErrSolverInternal.Message)
		}
	}()

	timeLimit := s.resolveTimeLimit(req.TimeLimitSeconds)
	budget := time.Duration(float64(timeLimit) * 0.9)
	seed := time.Now().UnixNano()

	start := time.Now()
	result := solver.Solve(problem, s.params, budget, seed)
	elapsed := time.Since(start)

	outcome := "feasible"
	status := models.TimetableRunStatusGenerated
	if result.HardCount > 0 {
		outcome = "timeout"
	}
	s.metrics.ObserveSolve(outcome, elapsed)
	for _, v := range result.Violations {
		s.metrics.IncViolation(string(v.Kind), string(v.Severity))
	}

	assignmentRows := make([]models.TimetableAssignmentRow, len(result.Assignments))
	for i, a := range result.Assignments {
		assignmentRows[i] = models.TimetableAssignmentRow{
			CourseID: a.CourseID, InstructorID: a.InstructorID, RoomID: a.RoomID, GroupID: a.GroupID,
			Day: a.Day.String(), StartMin: a.StartMin, EndMin: a.EndMin,
		}
	}
	violationRows := make([]models.TimetableViolationRow, len(result.Violations))
	for i, v := range result.Violations {
		indices, _ := json.Marshal(v.AffectedAssignmentIndices)
		violationRows[i] = models.TimetableViolationRow{
			Kind: string(v.Kind), Severity: string(v.Severity), Penalty: v.Penalty,
			Description: v.Description, AffectedAssignments: types.JSONText(indices),
		}
	}

	if err := s.repo.SaveResult(ctx, run.ID, status, result.Fitness, result.HardCount, assignmentRows, violationRows); err != nil {
		s.logger.Error("generate job: failed to persist result", zap.String("run_id", run.ID), zap.Error(err))
		return nil
	}

	if s.cache.Enabled() {
		response := buildGenerateResponse(result)
		_ = s.cache.Set(ctx, cacheKeyForDigest(run.InputDigest), response, s.resultTTL)
	}

	return nil
}

func (s *TimetableService) failRun(ctx context.Context, run *models.TimetableRun, code, message string) {
	if err := s.repo.UpdateStatus(ctx, run.ID, models.TimetableRunStatusDraft, code, message); err != nil {
		s.logger.Error("generate job: failed to record failure", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// Result returns the current run plus, once GENERATED or later, its
// generate-shaped output. The output is served from the result cache when
// available, falling back to the persisted assignments/violations.
func (s *TimetableService) Result(ctx context.Context, runID string) (*models.TimetableRun, *dto.GenerateResponse, bool, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable run not found")
	}

	switch run.Status {
	case models.TimetableRunStatusGenerated, models.TimetableRunStatusPublished, models.TimetableRunStatusArchived:
	default:
		return run, nil, false, nil
	}

	var cached dto.GenerateResponse
	if hit, err := s.cache.Get(ctx, cacheKeyForDigest(run.InputDigest), &cached); err == nil && hit {
		return run, &cached, true, nil
	}

	assignmentRows, err := s.repo.ListAssignments(ctx, runID)
	if err != nil {
		return run, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	violationRows, err := s.repo.ListViolations(ctx, runID)
	if err != nil {
		return run, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load violations")
	}

	assignments := make([]solver.Assignment, len(assignmentRows))
	for i, row := range assignmentRows {
		day, _ := solver.ParseDay(row.Day)
		assignments[i] = solver.Assignment{CourseID: row.CourseID, InstructorID: row.InstructorID, RoomID: row.RoomID, GroupID: row.GroupID, Day: day, StartMin: row.StartMin, EndMin: row.EndMin}
	}

	violations := make([]dto.ViolationOutput, len(violationRows))
	for i, row := range violationRows {
		var indices []int
		_ = json.Unmarshal(row.AffectedAssignments, &indices)
		violations[i] = dto.ViolationOutput{Kind: row.Kind, Severity: row.Severity, Penalty: row.Penalty, Description: row.Description, AffectedAssignmentIndices: indices}
	}

	fitness := run.Fitness
	response := &dto.GenerateResponse{
		Success:          run.HardViolationCount == 0,
		Assignments:      dto.FromSolverAssignments(assignments),
		FitnessScore:     &fitness,
		Violations:       violations,
		SolveTimeSeconds: 0,
		Message:          run.ErrorMessage,
	}
	return run, response, false, nil
}

// Validate is the stateless §6 validate operation: it never touches
// persistence, only the shared evaluator.
func (s *TimetableService) Validate(req dto.ValidateRequest) (*dto.ValidateResponse, error) {
	problem, err := req.GenerateRequest.ToSolverProblem()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}
	assignments, err := dto.ToSolverAssignments(req.Assignments)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}

	report := solver.Evaluate(problem, assignments)
	return &dto.ValidateResponse{
		IsValid:   report.HardCount == 0,
		Conflicts: dto.FromSolverViolations(report.Violations),
	}, nil
}

// CheckEdit is the stateless §6 check_edit operation; it never fails, per
// §7 ("the incremental checker never fails").
func (s *TimetableService) CheckEdit(req dto.CheckEditRequest) (*dto.CheckEditResponse, error) {
	problem, err := req.ProblemSnapshot.ToSolverProblem()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}
	assignments, err := dto.ToSolverAssignments(req.CurrentAssignments)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}

	day, ok := solver.ParseDay(req.Edit.Day)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown day %q", req.Edit.Day))
	}
	start, err := dto.ParseClock(req.Edit.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}
	end, err := dto.ParseClock(req.Edit.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, err.Error())
	}

	edit := solver.Edit{Index: req.Edit.Index, Day: day, StartMin: start, EndMin: end, RoomID: req.Edit.RoomID, InstructorID: req.Edit.InstructorID}
	report := solver.CheckEdit(problem, assignments, edit)
	return &dto.CheckEditResponse{Conflicts: dto.FromSolverViolations(report.Violations)}, nil
}

// CheckEditForRun loads a run's stored problem snapshot and its last
// persisted solution, then evaluates the caller-supplied edit against that
// snapshot, per §6 ("reading the run's last persisted solution as the
// snapshot").
func (s *TimetableService) CheckEditForRun(ctx context.Context, runID string, edit dto.EditInput) (*dto.CheckEditResponse, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable run not found")
	}

	var problemSnapshot dto.GenerateRequest
	if err := json.Unmarshal(run.Input, &problemSnapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSolverInternal.Code, appErrors.ErrSolverInternal.Status, "stored problem input is malformed")
	}

	assignmentRows, err := s.repo.ListAssignments(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	assignments := make([]solver.Assignment, len(assignmentRows))
	for i, row := range assignmentRows {
		day, _ := solver.ParseDay(row.Day)
		assignments[i] = solver.Assignment{CourseID: row.CourseID, InstructorID: row.InstructorID, RoomID: row.RoomID, GroupID: row.GroupID, Day: day, StartMin: row.StartMin, EndMin: row.EndMin}
	}
	currentAssignments := dto.FromSolverAssignments(assignments)

	return s.CheckEdit(dto.CheckEditRequest{
		ProblemSnapshot:    problemSnapshot,
		CurrentAssignments: currentAssignments,
		Edit:               edit,
	})
}

// Publish transitions a GENERATED run to PUBLISHED.
func (s *TimetableService) Publish(ctx context.Context, runID string) error {
	return s.transition(ctx, runID, models.TimetableRunStatusGenerated, models.TimetableRunStatusPublished)
}

// Archive transitions any run to ARCHIVED. Its cached result, if any, is
// invalidated so an archived run is never served from a stale cache entry.
func (s *TimetableService) Archive(ctx context.Context, runID string) error {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable run not found")
	}
	if err := s.repo.UpdateStatus(ctx, run.ID, models.TimetableRunStatusArchived, "", ""); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive run")
	}
	_ = s.cache.Invalidate(ctx, cacheKeyForDigest(run.InputDigest))
	return nil
}

func (s *TimetableService) transition(ctx context.Context, runID string, from, to models.TimetableRunStatus) error {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable run not found")
	}
	if run.Status != from {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("run %s is not in %s status", runID, from))
	}
	if err := s.repo.UpdateStatus(ctx, run.ID, to, "", ""); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition run")
	}
	return nil
}

func (s *TimetableService) resolveTimeLimit(requested *int) time.Duration {
	if requested == nil {
		return s.timeLimits.Default
	}
	d := time.Duration(*requested) * time.Second
	if d < s.timeLimits.Min {
		return s.timeLimits.Min
	}
	if d > s.timeLimits.Max {
		return s.timeLimits.Max
	}
	return d
}

func buildGenerateResponse(result solver.SolutionReport) dto.GenerateResponse {
	fitness := result.Fitness
	return dto.GenerateResponse{
		Success:          result.HardCount == 0,
		Assignments:      dto.FromSolverAssignments(result.Assignments),
		FitnessScore:     &fitness,
		Violations:       dto.FromSolverViolations(result.Violations),
		SolveTimeSeconds: result.Elapsed.Seconds(),
	}
}

func digestRequest(req dto.GenerateRequest) (string, error) {
	normalized, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

func cacheKeyForDigest(digest string) string {
	return "timetable:result:" + digest
}
