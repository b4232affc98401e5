package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

// ProgramRepository persists academic programs and intake batches.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// CreateProgram inserts a program.
func (r *ProgramRepository) CreateProgram(ctx context.Context, program *models.Program) error {
	now := time.Now().UTC()
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	program.CreatedAt = now
	program.UpdatedAt = now
	const query = `INSERT INTO programs (id, name, code, coordinator_id, active, created_at, updated_at)
	VALUES (:id, :name, :code, :coordinator_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// GetProgram fetches one program.
func (r *ProgramRepository) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, name, code, coordinator_id, active, created_at, updated_at FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// ListPrograms returns every active program.
func (r *ProgramRepository) ListPrograms(ctx context.Context) ([]models.Program, error) {
	const query = `SELECT id, name, code, coordinator_id, active, created_at, updated_at
	FROM programs WHERE active ORDER BY name`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// SetCoordinator assigns or clears the program coordinator.
func (r *ProgramRepository) SetCoordinator(ctx context.Context, programID string, coordinatorID *string) error {
	const query = `UPDATE programs SET coordinator_id = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, coordinatorID, time.Now().UTC(), programID); err != nil {
		return fmt.Errorf("set program coordinator: %w", err)
	}
	return nil
}

// CreateBatch inserts an intake batch.
func (r *ProgramRepository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO batches (id, program_id, name, code, academic_year, active, created_at)
	VALUES (:id, :program_id, :name, :code, :academic_year, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetBatch fetches one batch.
func (r *ProgramRepository) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, program_id, name, code, academic_year, active, created_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListBatches returns the active batches of one program.
func (r *ProgramRepository) ListBatches(ctx context.Context, programID string) ([]models.Batch, error) {
	const query = `SELECT id, program_id, name, code, academic_year, active, created_at
	FROM batches WHERE program_id = $1 AND active ORDER BY academic_year DESC, name`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, programID); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}
