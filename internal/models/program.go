package models

import "time"

// Program is an academic program applicants apply to. The coordinator, when
// set, is auto-assigned to files entering coordinator review.
type Program struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Code          string    `db:"code" json:"code"`
	CoordinatorID *string   `db:"coordinator_id" json:"coordinator_id,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Batch is an intake cohort within a program.
type Batch struct {
	ID           string    `db:"id" json:"id"`
	ProgramID    string    `db:"program_id" json:"program_id"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
