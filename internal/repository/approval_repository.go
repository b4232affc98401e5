package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

// ApprovalRepository persists the append-only approval history.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create appends one approval record. Records are never updated or deleted.
func (r *ApprovalRepository) Create(ctx context.Context, record *models.ApprovalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ApprovalDate.IsZero() {
		record.ApprovalDate = time.Now().UTC()
	}
	const query = `INSERT INTO approval_records
	(id, admission_file_id, approver_id, approval_type, decision, comments, approval_date)
	VALUES (:id, :admission_file_id, :approver_id, :approval_type, :decision, :comments, :approval_date)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create approval record: %w", err)
	}
	return nil
}

// ListByFile returns the full approval history of one file, oldest first.
func (r *ApprovalRepository) ListByFile(ctx context.Context, fileID string) ([]models.ApprovalRecord, error) {
	const query = `SELECT id, admission_file_id, approver_id, approval_type, decision, comments, approval_date
	FROM approval_records WHERE admission_file_id = $1 ORDER BY approval_date, id`
	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, fileID); err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}
