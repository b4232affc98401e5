package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/mailer"
)

type pendingEmailStore interface {
	Create(ctx context.Context, email *models.PendingEmail) error
	GetByID(ctx context.Context, id string) (*models.PendingEmail, error)
	List(ctx context.Context, filter models.PendingEmailFilter) ([]models.PendingEmail, error)
	ListPending(ctx context.Context, limit int) ([]models.PendingEmail, error)
	RecordAttempt(ctx context.Context, id string, errorMessage string) error
	MarkSent(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) error
	Summary(ctx context.Context) (*models.PendingEmailSummary, error)
}

// auditRecorder is the slice of AuditService the other services depend on.
type auditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// RecipientResolver resolves the recipients and template payload for a
// queued notification at delivery time, so retries always use fresh data.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, modelName, recordID string) ([]string, mailer.TemplateData, error)
}

// Notification describes one outbound notification request.
type Notification struct {
	TemplateRef string
	ModelName   string
	RecordID    string
	RecordName  string
	Priority    models.EmailPriority
	TriggeredBy *string
}

// NotificationService sends admission notifications with a durable retry
// queue behind the immediate delivery attempt.
type NotificationService struct {
	repo       pendingEmailStore
	transport  mailer.Mailer
	templates  *mailer.Registry
	resolver   RecipientResolver
	audit      auditRecorder
	logger     *zap.Logger
	maxRetries int
	batchSize  int
}

// NotificationServiceOption configures the service.
type NotificationServiceOption func(*NotificationService)

// WithRecipientResolver wires the recipient lookup.
func WithRecipientResolver(resolver RecipientResolver) NotificationServiceOption {
	return func(s *NotificationService) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// SetResolver wires the recipient lookup after construction. Used when the
// resolver is implemented by a service that itself depends on notifications.
func (s *NotificationService) SetResolver(resolver RecipientResolver) {
	if resolver != nil {
		s.resolver = resolver
	}
}

// WithRetryLimits overrides queue tuning.
func WithRetryLimits(maxRetries, batchSize int) NotificationServiceOption {
	return func(s *NotificationService) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if batchSize > 0 {
			s.batchSize = batchSize
		}
	}
}

// NewNotificationService constructs the service.
func NewNotificationService(repo pendingEmailStore, transport mailer.Mailer, templates *mailer.Registry, audit auditRecorder, logger *zap.Logger, opts ...NotificationServiceOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		repo:       repo,
		transport:  transport,
		templates:  templates,
		audit:      audit,
		logger:     logger,
		maxRetries: 3,
		batchSize:  50,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Notify attempts immediate delivery and falls back to the durable queue.
// It never returns an error: notification failure must not fail the
// admission operation that triggered it.
func (s *NotificationService) Notify(ctx context.Context, notification Notification) {
	if s.templates == nil || !s.templates.Has(notification.TemplateRef) {
		s.logger.Sugar().Warnw("unknown notification template", "template", notification.TemplateRef)
		return
	}

	if s.transport != nil && s.transport.IsConfigured() && s.resolver != nil {
		if err := s.deliver(ctx, notification.TemplateRef, notification.ModelName, notification.RecordID); err == nil {
			s.audit.Record(ctx, AuditEntry{
				ModelName:   notification.ModelName,
				RecordID:    notification.RecordID,
				RecordName:  notification.RecordName,
				UserID:      notification.TriggeredBy,
				Action:      models.AuditActionEmail,
				Description: "notification sent: " + notification.TemplateRef,
			})
			return
		} else {
			s.logger.Sugar().Warnw("immediate delivery failed, queueing",
				"template", notification.TemplateRef, "record_id", notification.RecordID, "error", err)
		}
	}

	s.enqueue(ctx, notification, "")
}

// RetrySweep attempts delivery for every due queue entry. Intended to run
// from the scheduler.
func (s *NotificationService) RetrySweep(ctx context.Context) (*dto.RetrySweepResult, error) {
	result := &dto.RetrySweepResult{}
	pending, err := s.repo.ListPending(ctx, s.batchSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending notifications")
	}
	now := time.Now().UTC()
	for i := range pending {
		entry := &pending[i]
		result.Scanned++
		if !entry.ReadyForRetry(now) {
			result.Skipped++
			continue
		}
		if err := s.Attempt(ctx, entry.ID); err != nil {
			result.Failed++
			continue
		}
		result.Sent++
	}
	return result, nil
}

// Attempt tries to deliver one queue entry and records the outcome.
func (s *NotificationService) Attempt(ctx context.Context, id string) error {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queued notification")
	}
	if entry.State != models.EmailPending {
		return appErrors.Clone(appErrors.ErrConflict, "notification already resolved")
	}
	if entry.RetryCount >= entry.MaxRetries {
		return appErrors.ErrRetryExhausted
	}

	if s.transport == nil || !s.transport.IsConfigured() {
		return s.recordFailure(ctx, entry, "mail transport not configured")
	}
	if err := s.deliver(ctx, entry.TemplateRef, entry.ModelName, entry.RecordID); err != nil {
		return s.recordFailure(ctx, entry, err.Error())
	}

	if err := s.repo.MarkSent(ctx, entry.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve queued notification")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   entry.ModelName,
		RecordID:    entry.RecordID,
		RecordName:  entry.RecordName,
		Action:      models.AuditActionEmail,
		Description: "queued notification delivered: " + entry.TemplateRef,
	})
	return nil
}

// List returns queue entries matching the filter.
func (s *NotificationService) List(ctx context.Context, query dto.PendingEmailQuery) ([]models.PendingEmail, error) {
	filter := models.PendingEmailFilter{
		States:   query.States,
		Priority: query.Priority,
		RecordID: query.RecordID,
	}
	filter.Limit, filter.Offset = pageWindow(query.Page, query.PageSize)
	emails, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queued notifications")
	}
	return emails, nil
}

// Summary aggregates queue counts.
func (s *NotificationService) Summary(ctx context.Context) (*models.PendingEmailSummary, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise notification queue")
	}
	return summary, nil
}

// Cancel withdraws a pending entry.
func (s *NotificationService) Cancel(ctx context.Context, id string, userID *string) error {
	if err := s.repo.Cancel(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "notification is not pending")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel notification")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "pending_email",
		RecordID:    id,
		UserID:      userID,
		Action:      models.AuditActionWrite,
		Description: "queued notification cancelled",
	})
	return nil
}

// Reset re-arms a failed entry for another round of retries.
func (s *NotificationService) Reset(ctx context.Context, id string, userID *string) error {
	if err := s.repo.Reset(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "notification is not failed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset notification")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "pending_email",
		RecordID:    id,
		UserID:      userID,
		Action:      models.AuditActionWrite,
		Description: "queued notification reset for retry",
	})
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, templateRef, modelName, recordID string) error {
	recipients, data, err := s.resolver.ResolveRecipient(ctx, modelName, recordID)
	if err != nil {
		return err
	}
	subject, body, err := s.templates.Render(templateRef, data)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, mailer.Message{To: recipients, Subject: subject, Body: body})
}

func (s *NotificationService) enqueue(ctx context.Context, notification Notification, errorMessage string) {
	entry := &models.PendingEmail{
		TemplateRef:  notification.TemplateRef,
		RecordID:     notification.RecordID,
		ModelName:    notification.ModelName,
		RecordName:   notification.RecordName,
		Priority:     notification.Priority,
		MaxRetries:   s.maxRetries,
		ErrorMessage: errorMessage,
		CreatedBy:    notification.TriggeredBy,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		// Last resort: the notification is lost but the trail records it.
		s.logger.Error("failed to queue notification",
			zap.String("template", notification.TemplateRef),
			zap.String("record_id", notification.RecordID),
			zap.Error(err))
		return
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   notification.ModelName,
		RecordID:    notification.RecordID,
		RecordName:  notification.RecordName,
		UserID:      notification.TriggeredBy,
		Action:      models.AuditActionEmail,
		Description: "notification queued for retry: " + notification.TemplateRef,
	})
}

func (s *NotificationService) recordFailure(ctx context.Context, entry *models.PendingEmail, message string) error {
	if err := s.repo.RecordAttempt(ctx, entry.ID, message); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record delivery attempt")
	}
	if entry.RetryCount+1 >= entry.MaxRetries {
		s.logger.Sugar().Errorw("notification retries exhausted",
			"template", entry.TemplateRef, "record_id", entry.RecordID, "error", message)
	}
	return appErrors.Clone(appErrors.ErrInternal, "notification delivery failed")
}
