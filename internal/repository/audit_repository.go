package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

const auditColumns = `id, model_name, record_id, record_name, user_id, action, description,
       old_values, new_values, changed_fields, ip_address, user_agent,
       severity, category, is_sensitive, is_anomaly, anomaly_reason, created_at`

// AuditRepository persists the append-only audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit entry. Entries are immutable once written.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityLow
	}
	if entry.Category == "" {
		entry.Category = models.CategoryOther
	}
	const query = `INSERT INTO audit_logs
	(id, model_name, record_id, record_name, user_id, action, description,
	 old_values, new_values, changed_fields, ip_address, user_agent,
	 severity, category, is_sensitive, is_anomaly, anomaly_reason, created_at)
	VALUES (:id, :model_name, :record_id, :record_name, :user_id, :action, :description,
	 :old_values, :new_values, :changed_fields, :ip_address, :user_agent,
	 :severity, :category, :is_sensitive, :is_anomaly, :anomaly_reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// List returns trail entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)

	if filter.ModelName != "" {
		args = append(args, filter.ModelName)
		conditions = append(conditions, fmt.Sprintf("model_name = $%d", len(args)))
	}
	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		conditions = append(conditions, fmt.Sprintf("record_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			args = append(args, action)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ",")))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d",
		auditColumns, where, limit, offset)

	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// ListSecurityViolations returns security events in a range, newest first.
func (r *AuditRepository) ListSecurityViolations(ctx context.Context, from, to time.Time, limit int) ([]models.AuditLog, error) {
	actions := models.SecurityActions()
	filter := models.AuditFilter{Actions: actions, From: from, To: to, Limit: limit}
	return r.List(ctx, filter)
}

// Report aggregates the trail over a date range for the audit report.
func (r *AuditRepository) Report(ctx context.Context, from, to time.Time) (*models.AuditReport, error) {
	report := &models.AuditReport{
		ByAction:   map[string]int{},
		ByUser:     map[string]int{},
		ByCategory: map[string]int{},
		BySeverity: map[string]int{},
		From:       from,
		To:         to,
	}

	const totalsQuery = `SELECT
	 COUNT(1) AS total,
	 COUNT(1) FILTER (WHERE action = 'security_violation') AS violations,
	 COUNT(1) FILTER (WHERE is_anomaly) AS anomalies,
	 COUNT(1) FILTER (WHERE is_sensitive) AS sensitive
	FROM audit_logs WHERE created_at >= $1 AND created_at <= $2`
	totals := struct {
		Total      int `db:"total"`
		Violations int `db:"violations"`
		Anomalies  int `db:"anomalies"`
		Sensitive  int `db:"sensitive"`
	}{}
	if err := r.db.GetContext(ctx, &totals, totalsQuery, from, to); err != nil {
		return nil, fmt.Errorf("audit report totals: %w", err)
	}
	report.TotalEntries = totals.Total
	report.SecurityViolations = totals.Violations
	report.Anomalies = totals.Anomalies
	report.SensitiveEntries = totals.Sensitive

	type bucket struct {
		Key   string `db:"key"`
		Total int    `db:"total"`
	}
	groupings := []struct {
		query string
		dest  map[string]int
	}{
		{`SELECT action AS key, COUNT(1) AS total FROM audit_logs WHERE created_at >= $1 AND created_at <= $2 GROUP BY action`, report.ByAction},
		{`SELECT COALESCE(user_id::text, 'system') AS key, COUNT(1) AS total FROM audit_logs WHERE created_at >= $1 AND created_at <= $2 GROUP BY user_id`, report.ByUser},
		{`SELECT category AS key, COUNT(1) AS total FROM audit_logs WHERE created_at >= $1 AND created_at <= $2 GROUP BY category`, report.ByCategory},
		{`SELECT severity AS key, COUNT(1) AS total FROM audit_logs WHERE created_at >= $1 AND created_at <= $2 GROUP BY severity`, report.BySeverity},
	}
	for _, grouping := range groupings {
		var buckets []bucket
		if err := r.db.SelectContext(ctx, &buckets, grouping.query, from, to); err != nil {
			return nil, fmt.Errorf("audit report grouping: %w", err)
		}
		for _, b := range buckets {
			grouping.dest[b.Key] = b.Total
		}
	}
	return report, nil
}

// Cleanup deletes low and medium severity entries older than the cutoff.
// High and critical entries are retained indefinitely.
func (r *AuditRepository) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM audit_logs
	WHERE created_at < $1 AND severity IN ('low', 'medium')`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit entries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check audit cleanup rows: %w", err)
	}
	return rows, nil
}
