package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

const pendingEmailColumns = `id, template_ref, record_id, model_name, record_name, state, priority,
       retry_count, max_retries, last_attempt_at, error_message, created_by, created_at, updated_at`

// PendingEmailRepository persists the durable notification retry queue.
type PendingEmailRepository struct {
	db *sqlx.DB
}

// NewPendingEmailRepository constructs the repository.
func NewPendingEmailRepository(db *sqlx.DB) *PendingEmailRepository {
	return &PendingEmailRepository{db: db}
}

// Create enqueues a failed notification for retry.
func (r *PendingEmailRepository) Create(ctx context.Context, email *models.PendingEmail) error {
	now := time.Now().UTC()
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	if email.State == "" {
		email.State = models.EmailPending
	}
	if email.Priority == "" {
		email.Priority = models.PriorityMedium
	}
	if email.MaxRetries <= 0 {
		email.MaxRetries = 3
	}
	email.CreatedAt = now
	email.UpdatedAt = now
	const query = `INSERT INTO pending_emails
	(id, template_ref, record_id, model_name, record_name, state, priority, retry_count, max_retries,
	 last_attempt_at, error_message, created_by, created_at, updated_at)
	VALUES (:id, :template_ref, :record_id, :model_name, :record_name, :state, :priority, :retry_count, :max_retries,
	 :last_attempt_at, :error_message, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("create pending email: %w", err)
	}
	return nil
}

// GetByID fetches one queue entry.
func (r *PendingEmailRepository) GetByID(ctx context.Context, id string) (*models.PendingEmail, error) {
	query := fmt.Sprintf(`SELECT %s FROM pending_emails WHERE id = $1`, pendingEmailColumns)
	var email models.PendingEmail
	if err := r.db.GetContext(ctx, &email, query, id); err != nil {
		return nil, err
	}
	return &email, nil
}

// List returns entries matching the filter, urgent first then oldest first.
func (r *PendingEmailRepository) List(ctx context.Context, filter models.PendingEmailFilter) ([]models.PendingEmail, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		conditions = append(conditions, fmt.Sprintf("record_id = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM pending_emails%s
	ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at
	LIMIT %d OFFSET %d`, pendingEmailColumns, where, limit, offset)

	var emails []models.PendingEmail
	if err := r.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("list pending emails: %w", err)
	}
	return emails, nil
}

// ListPending returns every entry still in the pending state with retries
// left. The backoff window is evaluated in memory by the caller.
func (r *PendingEmailRepository) ListPending(ctx context.Context, limit int) ([]models.PendingEmail, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM pending_emails
	WHERE state = 'pending' AND retry_count < max_retries
	ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at
	LIMIT %d`, pendingEmailColumns, limit)
	var emails []models.PendingEmail
	if err := r.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("list due pending emails: %w", err)
	}
	return emails, nil
}

// RecordAttempt bumps the retry counter after a failed delivery. When the
// entry has exhausted its retries it is moved to failed in the same write.
func (r *PendingEmailRepository) RecordAttempt(ctx context.Context, id string, errorMessage string) error {
	const query = `UPDATE pending_emails SET
	 retry_count = retry_count + 1,
	 last_attempt_at = $1,
	 error_message = $2,
	 state = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE state END,
	 updated_at = $1
	WHERE id = $3 AND state = 'pending'`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), errorMessage, id)
	if err != nil {
		return fmt.Errorf("record email attempt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check email attempt rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSent resolves a pending entry after successful delivery.
func (r *PendingEmailRepository) MarkSent(ctx context.Context, id string) error {
	return r.resolve(ctx, id, models.EmailSent)
}

// Cancel removes a pending entry from the queue without deleting it.
func (r *PendingEmailRepository) Cancel(ctx context.Context, id string) error {
	return r.resolve(ctx, id, models.EmailCancelled)
}

// Reset re-arms a failed entry for another round of retries.
func (r *PendingEmailRepository) Reset(ctx context.Context, id string) error {
	const query = `UPDATE pending_emails SET state = 'pending', retry_count = 0, error_message = '', updated_at = $1
	WHERE id = $2 AND state = 'failed'`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reset pending email: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check email reset rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Summary aggregates queue counts.
func (r *PendingEmailRepository) Summary(ctx context.Context) (*models.PendingEmailSummary, error) {
	const query = `SELECT
	 COUNT(1) AS total,
	 COUNT(1) FILTER (WHERE state = 'pending') AS pending,
	 COUNT(1) FILTER (WHERE state = 'sent') AS sent,
	 COUNT(1) FILTER (WHERE state = 'failed') AS failed,
	 COUNT(1) FILTER (WHERE state = 'cancelled') AS cancelled
	FROM pending_emails`
	row := struct {
		Total     int `db:"total"`
		Pending   int `db:"pending"`
		Sent      int `db:"sent"`
		Failed    int `db:"failed"`
		Cancelled int `db:"cancelled"`
	}{}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("pending email summary: %w", err)
	}
	return &models.PendingEmailSummary{
		Pending:   row.Pending,
		Sent:      row.Sent,
		Failed:    row.Failed,
		Cancelled: row.Cancelled,
		Total:     row.Total,
	}, nil
}

func (r *PendingEmailRepository) resolve(ctx context.Context, id string, to models.PendingEmailState) error {
	const query = `UPDATE pending_emails SET state = $1, updated_at = $2 WHERE id = $3 AND state = 'pending'`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("resolve pending email: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check email resolve rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
