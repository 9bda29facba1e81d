package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusforge/timetable-scheduler/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_runs")).
		WithArgs(sqlmock.AnyArg(), "fall-2026-cs", string(models.TimetableRunStatusDraft), "digest-1", types.JSONText(`{}`), 300, int64(0), 0.0, 0, "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.TimetableRun{Name: "fall-2026-cs", InputDigest: "digest-1", TimeLimitSeconds: 300}
	err := repo.Create(context.Background(), run)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.TimetableRunStatusDraft, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "status", "input_digest", "input", "time_limit_seconds", "seed", "fitness", "hard_violation_count", "error_code", "error_message", "created_at", "updated_at"}).
		AddRow("run-1", "fall-2026-cs", string(models.TimetableRunStatusGenerated), "digest-1", types.JSONText(`{}`), 300, 7, 950.0, 0, "", "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.FindByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableRunStatusGenerated, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = $1, error_code = $2, error_message = $3, updated_at = $4 WHERE id = $5")).
		WithArgs(models.TimetableRunStatusGenerating, "", "", sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpdateStatus(context.Background(), "run-1", models.TimetableRunStatusGenerating, "", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = $1, error_code = $2, error_message = $3, updated_at = $4 WHERE id = $5")).
		WithArgs(models.TimetableRunStatusArchived, "", "", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.TimetableRunStatusArchived, "", "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositorySaveResultReplacesWithinATransaction(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_assignments WHERE run_id = $1")).
		WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_violations WHERE run_id = $1")).
		WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WithArgs(sqlmock.AnyArg(), "run-1", "course-1", "inst-1", "room-1", "group-1", "MONDAY", 540, 600, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_violations")).
		WithArgs(sqlmock.AnyArg(), "run-1", "ROOM_DOUBLE_BOOKING", "HARD", 500.0, "room double-booked", types.JSONText(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = $1, fitness = $2, hard_violation_count = $3, updated_at = $4 WHERE id = $5")).
		WithArgs(models.TimetableRunStatusGenerated, 500.0, 1, sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assignments := []models.TimetableAssignmentRow{
		{CourseID: "course-1", InstructorID: "inst-1", RoomID: "room-1", GroupID: "group-1", Day: "MONDAY", StartMin: 540, EndMin: 600},
	}
	violations := []models.TimetableViolationRow{
		{Kind: "ROOM_DOUBLE_BOOKING", Severity: "HARD", Penalty: 500.0, Description: "room double-booked"},
	}

	err := repo.SaveResult(context.Background(), "run-1", models.TimetableRunStatusGenerated, 500.0, 1, assignments, violations)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
