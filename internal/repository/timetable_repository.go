package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/campusforge/timetable-scheduler/internal/models"
)

// TimetableRepository persists timetable runs and the assignments/
// violations produced by solving them.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs a timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new run in DRAFT status.
func (r *TimetableRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.TimetableRunStatusDraft
	}
	if len(run.Input) == 0 {
		run.Input = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	const query = `
INSERT INTO timetable_runs (id, name, status, input_digest, input, time_limit_seconds, seed, fitness, hard_violation_count, error_code, error_message, created_at, updated_at)
VALUES (:id, :name, :status, :input_digest, :input, :time_limit_seconds, :seed, :fitness, :hard_violation_count, :error_code, :error_message, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, run); err != nil {
		return fmt.Errorf("insert timetable run: %w", err)
	}
	return nil
}

// FindByID loads a run by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, name, status, input_digest, input, time_limit_seconds, seed, fitness, hard_violation_count, error_code, error_message, created_at, updated_at
FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// FindByInputDigest looks up an existing run for a normalized problem
// payload, supporting idempotent re-submission of an identical generate
// request.
func (r *TimetableRepository) FindByInputDigest(ctx context.Context, digest string) (*models.TimetableRun, error) {
	const query = `SELECT id, name, status, input_digest, input, time_limit_seconds, seed, fitness, hard_violation_count, error_code, error_message, created_at, updated_at
FROM timetable_runs WHERE input_digest = $1 ORDER BY created_at DESC LIMIT 1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, digest); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateStatus transitions a run's status, optionally recording an error.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, id string, status models.TimetableRunStatus, errorCode, errorMessage string) error {
	const query = `UPDATE timetable_runs SET status = $1, error_code = $2, error_message = $3, updated_at = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, status, errorCode, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update timetable run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable run status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveResult transactionally replaces a run's assignments and violations
// and records its final status and score, matching the §4.5 "no partial or
// torn data" requirement: either the whole result lands, or none of it
// does.
func (r *TimetableRepository) SaveResult(ctx context.Context, runID string, status models.TimetableRunStatus, fitness float64, hardCount int, assignments []models.TimetableAssignmentRow, violations []models.TimetableViolationRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timetable result transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM timetable_assignments WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear timetable assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM timetable_violations WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear timetable violations: %w", err)
	}

	now := time.Now().UTC()
	const assignmentQuery = `
INSERT INTO timetable_assignments (id, run_id, course_id, instructor_id, room_id, group_id, day, start_min, end_min, created_at)
VALUES (:id, :run_id, :course_id, :instructor_id, :room_id, :group_id, :day, :start_min, :end_min, :created_at)`
	for i := range assignments {
		row := &assignments[i]
		row.RunID = runID
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, tx, assignmentQuery, row); err != nil {
			return fmt.Errorf("insert timetable assignment: %w", err)
		}
	}

	const violationQuery = `
INSERT INTO timetable_violations (id, run_id, kind, severity, penalty, description, affected_assignments, created_at)
VALUES (:id, :run_id, :kind, :severity, :penalty, :description, :affected_assignments, :created_at)`
	for i := range violations {
		row := &violations[i]
		row.RunID = runID
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
		if len(row.AffectedAssignments) == 0 {
			row.AffectedAssignments = types.JSONText(`[]`)
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, violationQuery, row); err != nil {
			return fmt.Errorf("insert timetable violation: %w", err)
		}
	}

	const updateRunQuery = `UPDATE timetable_runs SET status = $1, fitness = $2, hard_violation_count = $3, updated_at = $4 WHERE id = $5`
	if _, err := tx.ExecContext(ctx, updateRunQuery, status, fitness, hardCount, now, runID); err != nil {
		return fmt.Errorf("update timetable run result: %w", err)
	}

	return tx.Commit()
}

// ListAssignments returns the persisted assignments for a run, ordered for
// stable display.
func (r *TimetableRepository) ListAssignments(ctx context.Context, runID string) ([]models.TimetableAssignmentRow, error) {
	const query = `SELECT id, run_id, course_id, instructor_id, room_id, group_id, day, start_min, end_min, created_at
FROM timetable_assignments WHERE run_id = $1 ORDER BY day ASC, start_min ASC`
	var rows []models.TimetableAssignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list timetable assignments: %w", err)
	}
	return rows, nil
}

// ListViolations returns the persisted violations for a run.
func (r *TimetableRepository) ListViolations(ctx context.Context, runID string) ([]models.TimetableViolationRow, error) {
	const query = `SELECT id, run_id, kind, severity, penalty, description, affected_assignments, created_at
FROM timetable_violations WHERE run_id = $1`
	var rows []models.TimetableViolationRow
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list timetable violations: %w", err)
	}
	return rows, nil
}
