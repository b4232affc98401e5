package models

import "time"

// ConditionState is the lifecycle of a single coordinator condition.
type ConditionState string

const (
	ConditionPending   ConditionState = "pending"
	ConditionCompleted ConditionState = "completed"
	ConditionRejected  ConditionState = "rejected"
	ConditionOverdue   ConditionState = "overdue"
)

// CoordinatorCondition is an academic prerequisite attached to a
// conditionally approved admission file. The parent file may leave
// coordinator_conditional only when none of its conditions remain pending.
type CoordinatorCondition struct {
	ID              string         `db:"id" json:"id"`
	AdmissionFileID string         `db:"admission_file_id" json:"admission_file_id"`
	CoordinatorID   string         `db:"coordinator_id" json:"coordinator_id"`
	SubjectName     string         `db:"subject_name" json:"subject_name"`
	SubjectCode     string         `db:"subject_code" json:"subject_code"`
	Level           AcademicLevel  `db:"level" json:"level"`
	Description     string         `db:"description" json:"description"`
	Deadline        *time.Time     `db:"deadline" json:"deadline,omitempty"`
	State           ConditionState `db:"state" json:"state"`
	CompletionDate  *time.Time     `db:"completion_date" json:"completion_date,omitempty"`
	Notes           string         `db:"notes" json:"notes"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Overdue reports whether a pending condition has passed its deadline.
func (c *CoordinatorCondition) Overdue(today time.Time) bool {
	return c.State == ConditionPending && c.Deadline != nil && c.Deadline.Before(today)
}

// ConditionSummary aggregates condition counts for one admission file.
type ConditionSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Rejected  int `json:"rejected"`
	Overdue   int `json:"overdue"`
}
