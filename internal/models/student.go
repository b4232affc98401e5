package models

import "time"

// Student is the permanent record created from a completed admission file.
type Student struct {
	ID              string         `db:"id" json:"id"`
	StudentNumber   string         `db:"student_number" json:"student_number"`
	AdmissionFileID string         `db:"admission_file_id" json:"admission_file_id"`
	FullName        string         `db:"full_name" json:"full_name"`
	NationalID      string         `db:"national_id" json:"national_id"`
	Email           string         `db:"email" json:"email"`
	Phone           string         `db:"phone" json:"phone,omitempty"`
	Gender          Gender         `db:"gender" json:"gender"`
	BirthDate       time.Time      `db:"birth_date" json:"birth_date"`
	Nationality     string         `db:"nationality" json:"nationality,omitempty"`
	ProgramID       string         `db:"program_id" json:"program_id"`
	BatchID         string         `db:"batch_id" json:"batch_id"`
	AcademicLevel   *AcademicLevel `db:"academic_level" json:"academic_level,omitempty"`
	EnrollmentDate  time.Time      `db:"enrollment_date" json:"enrollment_date"`
	Active          bool           `db:"active" json:"active"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}
