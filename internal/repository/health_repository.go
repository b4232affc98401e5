package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

const healthCheckColumns = `id, admission_file_id, examiner_id, check_date, state,
       has_chronic_diseases, chronic_diseases_details, takes_medications, medications_details,
       has_allergies, allergies_details, has_disabilities, disabilities_details,
       blood_type, height_cm, weight_kg,
       medical_fitness, medical_notes, restrictions, follow_up_required, follow_up_date,
       created_at, updated_at`

// HealthRepository persists health check records.
type HealthRepository struct {
	db *sqlx.DB
}

// NewHealthRepository constructs the repository.
func NewHealthRepository(db *sqlx.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// Create inserts a new draft health check.
func (r *HealthRepository) Create(ctx context.Context, check *models.HealthCheck) error {
	now := time.Now().UTC()
	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	if check.State == "" {
		check.State = models.HealthDraft
	}
	if check.CheckDate.IsZero() {
		check.CheckDate = now
	}
	check.CreatedAt = now
	check.UpdatedAt = now
	const query = `INSERT INTO health_checks
	(id, admission_file_id, examiner_id, check_date, state,
	 has_chronic_diseases, chronic_diseases_details, takes_medications, medications_details,
	 has_allergies, allergies_details, has_disabilities, disabilities_details,
	 blood_type, height_cm, weight_kg,
	 medical_fitness, medical_notes, restrictions, follow_up_required, follow_up_date,
	 created_at, updated_at)
	VALUES (:id, :admission_file_id, :examiner_id, :check_date, :state,
	 :has_chronic_diseases, :chronic_diseases_details, :takes_medications, :medications_details,
	 :has_allergies, :allergies_details, :has_disabilities, :disabilities_details,
	 :blood_type, :height_cm, :weight_kg,
	 :medical_fitness, :medical_notes, :restrictions, :follow_up_required, :follow_up_date,
	 :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, check); err != nil {
		return fmt.Errorf("create health check: %w", err)
	}
	return nil
}

// GetByID fetches one health check.
func (r *HealthRepository) GetByID(ctx context.Context, id string) (*models.HealthCheck, error) {
	query := fmt.Sprintf(`SELECT %s FROM health_checks WHERE id = $1`, healthCheckColumns)
	var check models.HealthCheck
	if err := r.db.GetContext(ctx, &check, query, id); err != nil {
		return nil, err
	}
	return &check, nil
}

// ListByFile returns all health checks for one admission file, newest first.
func (r *HealthRepository) ListByFile(ctx context.Context, fileID string) ([]models.HealthCheck, error) {
	query := fmt.Sprintf(`SELECT %s FROM health_checks
	WHERE admission_file_id = $1 ORDER BY check_date DESC, id`, healthCheckColumns)
	var checks []models.HealthCheck
	if err := r.db.SelectContext(ctx, &checks, query, fileID); err != nil {
		return nil, fmt.Errorf("list health checks: %w", err)
	}
	return checks, nil
}

// Update replaces the questionnaire and assessment fields of a draft check.
func (r *HealthRepository) Update(ctx context.Context, check *models.HealthCheck) error {
	check.UpdatedAt = time.Now().UTC()
	const query = `UPDATE health_checks SET
	 has_chronic_diseases = :has_chronic_diseases, chronic_diseases_details = :chronic_diseases_details,
	 takes_medications = :takes_medications, medications_details = :medications_details,
	 has_allergies = :has_allergies, allergies_details = :allergies_details,
	 has_disabilities = :has_disabilities, disabilities_details = :disabilities_details,
	 blood_type = :blood_type, height_cm = :height_cm, weight_kg = :weight_kg,
	 medical_fitness = :medical_fitness, medical_notes = :medical_notes, restrictions = :restrictions,
	 follow_up_required = :follow_up_required, follow_up_date = :follow_up_date,
	 updated_at = :updated_at
	WHERE id = :id AND state = 'draft'`
	result, err := r.db.NamedExecContext(ctx, query, check)
	if err != nil {
		return fmt.Errorf("update health check: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check health update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateState performs a guarded state change. The allowed origins differ per
// target: submitted only from draft, approved/rejected only from submitted.
func (r *HealthRepository) UpdateState(ctx context.Context, id string, from, to models.HealthCheckState) error {
	const query = `UPDATE health_checks SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update health check state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check health state rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
