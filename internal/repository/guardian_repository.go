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

// GuardianRepository persists guardian contacts for admission files.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs the repository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// Create inserts a guardian. The first guardian on a file becomes the default
// contact; setting IsDefault on a later one demotes the previous default.
func (r *GuardianRepository) Create(ctx context.Context, guardian *models.Guardian) error {
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	guardian.Active = true
	guardian.CreatedAt = time.Now().UTC()

	count, err := r.countByFile(ctx, guardian.AdmissionFileID)
	if err != nil {
		return err
	}
	if count == 0 {
		guardian.IsDefault = true
	} else if guardian.IsDefault {
		if err := r.clearDefault(ctx, guardian.AdmissionFileID); err != nil {
			return err
		}
	}

	const query = `INSERT INTO guardians
	(id, admission_file_id, name, relationship, phone, email, is_default, active, created_at)
	VALUES (:id, :admission_file_id, :name, :relationship, :phone, :email, :is_default, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, guardian); err != nil {
		return fmt.Errorf("create guardian: %w", err)
	}
	return nil
}

// GetByID fetches one guardian.
func (r *GuardianRepository) GetByID(ctx context.Context, id string) (*models.Guardian, error) {
	const query = `SELECT id, admission_file_id, name, relationship, phone, email, is_default, active, created_at
	FROM guardians WHERE id = $1`
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, id); err != nil {
		return nil, err
	}
	return &guardian, nil
}

// ListByFile returns the active guardians of one admission file.
func (r *GuardianRepository) ListByFile(ctx context.Context, fileID string) ([]models.Guardian, error) {
	const query = `SELECT id, admission_file_id, name, relationship, phone, email, is_default, active, created_at
	FROM guardians WHERE admission_file_id = $1 AND active ORDER BY is_default DESC, created_at`
	var guardians []models.Guardian
	if err := r.db.SelectContext(ctx, &guardians, query, fileID); err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	return guardians, nil
}

// SetDefault promotes one guardian to the default contact.
func (r *GuardianRepository) SetDefault(ctx context.Context, fileID, guardianID string) error {
	if err := r.clearDefault(ctx, fileID); err != nil {
		return err
	}
	const query = `UPDATE guardians SET is_default = TRUE WHERE id = $1 AND admission_file_id = $2 AND active`
	result, err := r.db.ExecContext(ctx, query, guardianID, fileID)
	if err != nil {
		return fmt.Errorf("set default guardian: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check default guardian rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate soft-deletes a guardian contact.
func (r *GuardianRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE guardians SET active = FALSE, is_default = FALSE WHERE id = $1 AND active`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate guardian: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deactivate guardian rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *GuardianRepository) countByFile(ctx context.Context, fileID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM guardians WHERE admission_file_id = $1 AND active`, fileID); err != nil {
		return 0, fmt.Errorf("count guardians: %w", err)
	}
	return count, nil
}

func (r *GuardianRepository) clearDefault(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE guardians SET is_default = FALSE WHERE admission_file_id = $1`, fileID); err != nil {
		return fmt.Errorf("clear default guardian: %w", err)
	}
	return nil
}
