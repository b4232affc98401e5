package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type auditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
	ListSecurityViolations(ctx context.Context, from, to time.Time, limit int) ([]models.AuditLog, error)
	Report(ctx context.Context, from, to time.Time) (*models.AuditReport, error)
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditEntry is the input for recording one trail entry.
type AuditEntry struct {
	ModelName     string
	RecordID      string
	RecordName    string
	UserID        *string
	Action        models.AuditAction
	Description   string
	OldValues     interface{}
	NewValues     interface{}
	ChangedFields []string
	IPAddress     string
	UserAgent     string
	Severity      models.AuditSeverity
	Category      models.AuditCategory
	IsSensitive   bool
}

// AuditService records and queries the append-only audit trail.
type AuditService struct {
	repo          auditStore
	logger        *zap.Logger
	retentionDays int
}

// NewAuditService constructs the service.
func NewAuditService(repo auditStore, retentionDays int, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retentionDays <= 0 {
		retentionDays = 365
	}
	return &AuditService{repo: repo, logger: logger, retentionDays: retentionDays}
}

// Record persists one trail entry. Failures are logged and swallowed: an
// audit write must never fail the business operation that triggered it.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	log := &models.AuditLog{
		ModelName:   entry.ModelName,
		RecordID:    entry.RecordID,
		RecordName:  entry.RecordName,
		UserID:      entry.UserID,
		Action:      entry.Action,
		Description: entry.Description,
		IPAddress:   entry.IPAddress,
		UserAgent:   entry.UserAgent,
		Severity:    entry.Severity,
		Category:    entry.Category,
		IsSensitive: entry.IsSensitive,
	}
	log.OldValues = marshalValues(entry.OldValues)
	log.NewValues = marshalValues(entry.NewValues)
	if len(entry.ChangedFields) > 0 {
		log.ChangedFields = marshalValues(entry.ChangedFields)
	}
	if log.Category == "" {
		log.Category = categoryForAction(log.Action)
	}
	if log.Severity == "" {
		log.Severity = severityForAction(log.Action)
	}
	if log.Action == models.AuditActionSecurityViolation {
		log.IsAnomaly = true
		log.AnomalyReason = entry.Description
	}
	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit entry",
			zap.String("model", entry.ModelName),
			zap.String("record_id", entry.RecordID),
			zap.Error(err))
	}
}

// Trail returns the history of one record, newest first.
func (s *AuditService) Trail(ctx context.Context, modelName, recordID string, page, pageSize int) ([]models.AuditLog, error) {
	if modelName == "" || recordID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "model name and record id are required")
	}
	filter := models.AuditFilter{ModelName: modelName, RecordID: recordID}
	filter.Limit, filter.Offset = pageWindow(page, pageSize)
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return entries, nil
}

// UserActivity returns everything one user did, newest first.
func (s *AuditService) UserActivity(ctx context.Context, userID string, page, pageSize int) ([]models.AuditLog, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	filter := models.AuditFilter{UserID: userID}
	filter.Limit, filter.Offset = pageWindow(page, pageSize)
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user activity")
	}
	return entries, nil
}

// Query returns trail entries matching arbitrary filters.
func (s *AuditService) Query(ctx context.Context, query dto.AuditQuery) ([]models.AuditLog, error) {
	filter := models.AuditFilter{
		ModelName: query.ModelName,
		RecordID:  query.RecordID,
		UserID:    query.UserID,
		Category:  query.Category,
		Actions:   query.Actions,
		From:      query.From,
		To:        query.To,
	}
	filter.Limit, filter.Offset = pageWindow(query.Page, query.PageSize)
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query audit trail")
	}
	return entries, nil
}

// SecurityViolations returns security events within a range.
func (s *AuditService) SecurityViolations(ctx context.Context, from, to time.Time, limit int) ([]models.AuditLog, error) {
	from, to = normaliseRange(from, to)
	entries, err := s.repo.ListSecurityViolations(ctx, from, to, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load security violations")
	}
	return entries, nil
}

// Report aggregates the trail over a range.
func (s *AuditService) Report(ctx context.Context, query dto.AuditReportQuery) (*models.AuditReport, error) {
	from, to := normaliseRange(query.From, query.To)
	report, err := s.repo.Report(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build audit report")
	}
	return report, nil
}

// Cleanup purges old low and medium severity entries per the retention
// policy. Intended to run from the scheduler.
func (s *AuditService) Cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("audit cleanup: %w", err)
	}
	if deleted > 0 {
		s.logger.Sugar().Infow("audit retention cleanup", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}

func marshalValues(v interface{}) []byte {
	if v == nil {
		return nil
	}
	if raw, ok := v.([]byte); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func categoryForAction(action models.AuditAction) models.AuditCategory {
	switch action {
	case models.AuditActionCreate, models.AuditActionWrite, models.AuditActionDelete:
		return models.CategoryDataModification
	case models.AuditActionWorkflow, models.AuditActionApproval, models.AuditActionRejection,
		models.AuditActionCompletion, models.AuditActionCancellation:
		return models.CategoryWorkflow
	case models.AuditActionLogin, models.AuditActionLogout, models.AuditActionPasswordChange,
		models.AuditActionSecurityViolation:
		return models.CategorySecurity
	case models.AuditActionPortalAccess:
		return models.CategoryPortal
	case models.AuditActionExport:
		return models.CategoryReport
	case models.AuditActionEmail:
		return models.CategorySystem
	default:
		return models.CategoryOther
	}
}

func severityForAction(action models.AuditAction) models.AuditSeverity {
	switch action {
	case models.AuditActionSecurityViolation:
		return models.SeverityCritical
	case models.AuditActionDelete, models.AuditActionCancellation, models.AuditActionPasswordChange:
		return models.SeverityHigh
	case models.AuditActionWorkflow, models.AuditActionApproval, models.AuditActionRejection,
		models.AuditActionCompletion, models.AuditActionExport:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func pageWindow(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

func normaliseRange(from, to time.Time) (time.Time, time.Time) {
	now := time.Now().UTC()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	return from, to
}
