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

const conditionColumns = `id, admission_file_id, coordinator_id, subject_name, subject_code, level,
       description, deadline, state, completion_date, notes, created_at, updated_at`

// ConditionRepository persists coordinator conditions.
type ConditionRepository struct {
	db *sqlx.DB
}

// NewConditionRepository constructs the repository.
func NewConditionRepository(db *sqlx.DB) *ConditionRepository {
	return &ConditionRepository{db: db}
}

// Create inserts a new pending condition.
func (r *ConditionRepository) Create(ctx context.Context, condition *models.CoordinatorCondition) error {
	now := time.Now().UTC()
	if condition.ID == "" {
		condition.ID = uuid.NewString()
	}
	if condition.State == "" {
		condition.State = models.ConditionPending
	}
	condition.CreatedAt = now
	condition.UpdatedAt = now
	const query = `INSERT INTO coordinator_conditions
	(id, admission_file_id, coordinator_id, subject_name, subject_code, level, description,
	 deadline, state, notes, created_at, updated_at)
	VALUES (:id, :admission_file_id, :coordinator_id, :subject_name, :subject_code, :level, :description,
	 :deadline, :state, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, condition); err != nil {
		return fmt.Errorf("create coordinator condition: %w", err)
	}
	return nil
}

// GetByID fetches one condition.
func (r *ConditionRepository) GetByID(ctx context.Context, id string) (*models.CoordinatorCondition, error) {
	query := fmt.Sprintf(`SELECT %s FROM coordinator_conditions WHERE id = $1`, conditionColumns)
	var condition models.CoordinatorCondition
	if err := r.db.GetContext(ctx, &condition, query, id); err != nil {
		return nil, err
	}
	return &condition, nil
}

// ListByFile returns all conditions attached to one admission file.
func (r *ConditionRepository) ListByFile(ctx context.Context, fileID string) ([]models.CoordinatorCondition, error) {
	query := fmt.Sprintf(`SELECT %s FROM coordinator_conditions
	WHERE admission_file_id = $1 ORDER BY created_at, id`, conditionColumns)
	var conditions []models.CoordinatorCondition
	if err := r.db.SelectContext(ctx, &conditions, query, fileID); err != nil {
		return nil, fmt.Errorf("list coordinator conditions: %w", err)
	}
	return conditions, nil
}

// UpdateState performs a guarded state change from an unresolved state:
// pending for resolution, overdue for the reset path. Returns sql.ErrNoRows
// when the condition was already resolved by another writer.
func (r *ConditionRepository) UpdateState(ctx context.Context, id string, to models.ConditionState, completionDate *time.Time, notes string) error {
	const query = `UPDATE coordinator_conditions
	SET state = $1, completion_date = $2, notes = $3, updated_at = $4
	WHERE id = $5 AND state IN ('pending', 'overdue')`
	result, err := r.db.ExecContext(ctx, query, to, completionDate, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update condition state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check condition update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkOverdue flags every pending condition whose deadline passed before the
// reference date. Idempotent; returns the number of rows flagged.
func (r *ConditionRepository) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	const query = `UPDATE coordinator_conditions
	SET state = 'overdue', updated_at = $1
	WHERE state = 'pending' AND deadline IS NOT NULL AND deadline < $2`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), today)
	if err != nil {
		return 0, fmt.Errorf("mark overdue conditions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check overdue rows: %w", err)
	}
	return rows, nil
}

// CountPending returns the number of conditions still blocking the file.
// Only pending blocks; overdue conditions remain actionable but do not gate.
func (r *ConditionRepository) CountPending(ctx context.Context, fileID string) (int, error) {
	const query = `SELECT COUNT(1) FROM coordinator_conditions
	WHERE admission_file_id = $1 AND state = 'pending'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, fileID); err != nil {
		return 0, fmt.Errorf("count pending conditions: %w", err)
	}
	return count, nil
}

// Summary aggregates condition counts for one admission file. An empty
// fileID aggregates across all files.
func (r *ConditionRepository) Summary(ctx context.Context, fileID string) (*models.ConditionSummary, error) {
	query := `SELECT
	 COUNT(1) AS total,
	 COUNT(1) FILTER (WHERE state = 'pending') AS pending,
	 COUNT(1) FILTER (WHERE state = 'completed') AS completed,
	 COUNT(1) FILTER (WHERE state = 'rejected') AS rejected,
	 COUNT(1) FILTER (WHERE state = 'overdue') AS overdue
	FROM coordinator_conditions`
	args := []interface{}{}
	if fileID != "" {
		query += ` WHERE admission_file_id = $1`
		args = append(args, fileID)
	}
	row := struct {
		Total     int `db:"total"`
		Pending   int `db:"pending"`
		Completed int `db:"completed"`
		Rejected  int `db:"rejected"`
		Overdue   int `db:"overdue"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("condition summary: %w", err)
	}
	return &models.ConditionSummary{
		Total:     row.Total,
		Pending:   row.Pending,
		Completed: row.Completed,
		Rejected:  row.Rejected,
		Overdue:   row.Overdue,
	}, nil
}
