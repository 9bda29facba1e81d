package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableRunStatus is the lifecycle state of a timetable run.
type TimetableRunStatus string

const (
	TimetableRunStatusDraft      TimetableRunStatus = "DRAFT"
	TimetableRunStatusGenerating TimetableRunStatus = "GENERATING"
	TimetableRunStatusGenerated  TimetableRunStatus = "GENERATED"
	TimetableRunStatusPublished  TimetableRunStatus = "PUBLISHED"
	TimetableRunStatusArchived   TimetableRunStatus = "ARCHIVED"
	TimetableRunStatusFailed     TimetableRunStatus = "FAILED"
)

// TimetableRun is a single generation attempt over a problem input: its
// lifecycle status, the solver parameters it ran with, and the resulting
// score. Problem and constraint payloads are stored as JSON in Input so the
// run can be replayed or audited without a parallel normalized schema.
type TimetableRun struct {
	ID                 string             `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	Status             TimetableRunStatus `db:"status" json:"status"`
	InputDigest        string             `db:"input_digest" json:"input_digest"`
	Input              types.JSONText     `db:"input" json:"-"`
	TimeLimitSeconds   int                `db:"time_limit_seconds" json:"time_limit_seconds"`
	Seed               int64              `db:"seed" json:"seed"`
	Fitness            float64            `db:"fitness" json:"fitness"`
	HardViolationCount int                `db:"hard_violation_count" json:"hard_violation_count"`
	ErrorCode          string             `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage       string             `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// TimetableAssignmentRow is one persisted (course, group) -> (instructor,
// room, day, time) binding belonging to a run.
type TimetableAssignmentRow struct {
	ID           string    `db:"id"`
	RunID        string    `db:"run_id"`
	CourseID     string    `db:"course_id"`
	InstructorID string    `db:"instructor_id"`
	RoomID       string    `db:"room_id"`
	GroupID      string    `db:"group_id"`
	Day          string    `db:"day"`
	StartMin     int       `db:"start_min"`
	EndMin       int       `db:"end_min"`
	CreatedAt    time.Time `db:"created_at"`
}

// TimetableViolationRow is one persisted violation produced by evaluating a
// run's assignments.
type TimetableViolationRow struct {
	ID                  string         `db:"id"`
	RunID               string         `db:"run_id"`
	Kind                string         `db:"kind"`
	Severity            string         `db:"severity"`
	Penalty             float64        `db:"penalty"`
	Description         string         `db:"description"`
	AffectedAssignments types.JSONText `db:"affected_assignments"`
	CreatedAt           time.Time      `db:"created_at"`
}
