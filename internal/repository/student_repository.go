package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

const studentColumns = `id, student_number, admission_file_id, full_name, national_id, email, phone,
       gender, birth_date, nationality, program_id, batch_id, academic_level, enrollment_date,
       active, created_at, updated_at`

// StudentRepository persists enrolled student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts the student created from a completed admission file.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.EnrollmentDate.IsZero() {
		student.EnrollmentDate = now
	}
	student.Active = true
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students
	(id, student_number, admission_file_id, full_name, national_id, email, phone,
	 gender, birth_date, nationality, program_id, batch_id, academic_level, enrollment_date,
	 active, created_at, updated_at)
	VALUES (:id, :student_number, :admission_file_id, :full_name, :national_id, :email, :phone,
	 :gender, :birth_date, :nationality, :program_id, :batch_id, :academic_level, :enrollment_date,
	 :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// GetByID fetches one student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// GetByAdmissionFile fetches the student created from a given admission file.
func (r *StudentRepository) GetByAdmissionFile(ctx context.Context, fileID string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE admission_file_id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, fileID); err != nil {
		return nil, err
	}
	return &student, nil
}

// NextSequence reserves the next student number sequence for a program/batch
// pair within an enrollment year.
func (r *StudentRepository) NextSequence(ctx context.Context, year int, programID, batchID string) (int, error) {
	const query = `INSERT INTO student_number_sequences (year, program_id, batch_id, last_value)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (year, program_id, batch_id) DO UPDATE SET last_value = student_number_sequences.last_value + 1
	RETURNING last_value`
	var value int
	if err := r.db.GetContext(ctx, &value, query, year, programID, batchID); err != nil {
		return 0, fmt.Errorf("next student sequence: %w", err)
	}
	return value, nil
}
