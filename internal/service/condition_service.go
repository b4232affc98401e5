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
)

type conditionStore interface {
	Create(ctx context.Context, condition *models.CoordinatorCondition) error
	GetByID(ctx context.Context, id string) (*models.CoordinatorCondition, error)
	ListByFile(ctx context.Context, fileID string) ([]models.CoordinatorCondition, error)
	UpdateState(ctx context.Context, id string, to models.ConditionState, completionDate *time.Time, notes string) error
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
	CountPending(ctx context.Context, fileID string) (int, error)
	Summary(ctx context.Context, fileID string) (*models.ConditionSummary, error)
}

type admissionFileReader interface {
	GetByID(ctx context.Context, id string) (*models.AdmissionFile, error)
}

// conditionalEscalator advances a conditional file once its last pending
// condition completes. Implemented by AdmissionService.
type conditionalEscalator interface {
	CoordinatorApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error)
}

// ConditionService tracks coordinator-imposed academic prerequisites.
type ConditionService struct {
	repo      conditionStore
	files     admissionFileReader
	escalator conditionalEscalator
	audit     auditRecorder
	logger    *zap.Logger

	defaultDeadlineDays int
}

// ConditionServiceOption configures the service.
type ConditionServiceOption func(*ConditionService)

// WithDefaultDeadline sets the deadline applied to conditions created
// without one.
func WithDefaultDeadline(days int) ConditionServiceOption {
	return func(s *ConditionService) {
		if days > 0 {
			s.defaultDeadlineDays = days
		}
	}
}

// NewConditionService constructs the service. The escalator is wired after
// construction because it is implemented by the admission service.
func NewConditionService(repo conditionStore, files admissionFileReader, audit auditRecorder, logger *zap.Logger, opts ...ConditionServiceOption) *ConditionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ConditionService{repo: repo, files: files, audit: audit, logger: logger, defaultDeadlineDays: 30}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SetEscalator wires the auto-advance path.
func (s *ConditionService) SetEscalator(escalator conditionalEscalator) {
	s.escalator = escalator
}

// Create attaches a condition to a file under coordinator review.
func (s *ConditionService) Create(ctx context.Context, fileID, coordinatorID string, payload dto.ConditionPayload) (*models.CoordinatorCondition, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission file")
	}
	if file.State != models.StateCoordinatorReview && file.State != models.StateCoordinatorConditional {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "conditions can only be created during coordinator review")
	}
	if payload.SubjectName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject name is required")
	}
	deadline := payload.Deadline
	if deadline == nil {
		due := time.Now().UTC().AddDate(0, 0, s.defaultDeadlineDays)
		deadline = &due
	}
	condition := &models.CoordinatorCondition{
		AdmissionFileID: fileID,
		CoordinatorID:   coordinatorID,
		SubjectName:     payload.SubjectName,
		SubjectCode:     payload.SubjectCode,
		Level:           payload.Level,
		Description:     payload.Description,
		Deadline:        deadline,
	}
	if err := s.repo.Create(ctx, condition); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create condition")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "coordinator_condition",
		RecordID:    condition.ID,
		RecordName:  condition.SubjectName,
		UserID:      optionalID(coordinatorID),
		Action:      models.AuditActionCreate,
		Description: "condition created on file " + file.FileNumber,
		NewValues:   condition,
	})
	return condition, nil
}

// ListByFile returns all conditions of one file.
func (s *ConditionService) ListByFile(ctx context.Context, fileID string) ([]models.CoordinatorCondition, error) {
	conditions, err := s.repo.ListByFile(ctx, fileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conditions")
	}
	return conditions, nil
}

// Summary aggregates condition counts for one file.
func (s *ConditionService) Summary(ctx context.Context, fileID string) (*models.ConditionSummary, error) {
	summary, err := s.repo.Summary(ctx, fileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise conditions")
	}
	return summary, nil
}

// Complete marks a condition fulfilled. When it was the last pending
// condition on a coordinator_conditional file, the parent auto-advances to
// coordinator_approved.
func (s *ConditionService) Complete(ctx context.Context, id, userID string, req dto.ResolveConditionRequest) (*models.CoordinatorCondition, error) {
	condition, err := s.resolve(ctx, id, userID, models.ConditionCompleted, req.Notes)
	if err != nil {
		return nil, err
	}

	file, err := s.files.GetByID(ctx, condition.AdmissionFileID)
	if err != nil {
		s.logger.Warn("failed to load parent file after condition completion", zap.Error(err))
		return condition, nil
	}
	if file.State != models.StateCoordinatorConditional {
		return condition, nil
	}
	pending, err := s.repo.CountPending(ctx, file.ID)
	if err != nil {
		s.logger.Warn("failed to count pending conditions", zap.Error(err))
		return condition, nil
	}
	if pending == 0 && s.escalator != nil {
		if _, err := s.escalator.CoordinatorApprove(ctx, file.ID, condition.CoordinatorID, dto.DecisionRequest{
			Comments: "all conditions satisfied",
		}); err != nil {
			s.logger.Warn("auto-advance after last condition failed",
				zap.String("file_id", file.ID), zap.Error(err))
		}
	}
	return condition, nil
}

// Reject marks a condition as failed. The parent file stays conditional.
func (s *ConditionService) Reject(ctx context.Context, id, userID string, req dto.ResolveConditionRequest) (*models.CoordinatorCondition, error) {
	return s.resolve(ctx, id, userID, models.ConditionRejected, req.Notes)
}

// ResetToPending reopens an overdue condition so it can still be fulfilled,
// typically after the coordinator extends the deadline.
func (s *ConditionService) ResetToPending(ctx context.Context, id, userID string) (*models.CoordinatorCondition, error) {
	condition, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load condition")
	}
	if condition.State != models.ConditionOverdue {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only overdue conditions can be reset")
	}
	if err := s.repo.UpdateState(ctx, id, models.ConditionPending, nil, condition.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "condition was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset condition")
	}
	condition.State = models.ConditionPending

	s.audit.Record(ctx, AuditEntry{
		ModelName:   "coordinator_condition",
		RecordID:    condition.ID,
		RecordName:  condition.SubjectName,
		UserID:      optionalID(userID),
		Action:      models.AuditActionWrite,
		Description: "overdue condition reset to pending",
		OldValues:   map[string]string{"state": string(models.ConditionOverdue)},
		NewValues:   map[string]string{"state": string(models.ConditionPending)},
	})
	return condition, nil
}

// SweepOverdue idempotently promotes pending conditions past their deadline
// to overdue. Intended to run daily from the scheduler.
func (s *ConditionService) SweepOverdue(ctx context.Context) error {
	flagged, err := s.repo.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if flagged > 0 {
		s.logger.Sugar().Infow("conditions marked overdue", "count", flagged)
		s.audit.Record(ctx, AuditEntry{
			ModelName:   "coordinator_condition",
			RecordID:    "sweep",
			Action:      models.AuditActionWorkflow,
			Description: "overdue sweep flagged conditions",
			NewValues:   map[string]int64{"flagged": flagged},
		})
	}
	return nil
}

func (s *ConditionService) resolve(ctx context.Context, id, userID string, to models.ConditionState, notes string) (*models.CoordinatorCondition, error) {
	condition, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load condition")
	}
	if condition.State != models.ConditionPending {
		// Overdue conditions go through ResetToPending first.
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "condition is not pending")
	}

	var completionDate *time.Time
	if to == models.ConditionCompleted {
		now := time.Now().UTC()
		completionDate = &now
	}
	if err := s.repo.UpdateState(ctx, id, to, completionDate, notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "condition was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update condition")
	}
	old := condition.State
	condition.State = to
	condition.CompletionDate = completionDate
	condition.Notes = notes

	s.audit.Record(ctx, AuditEntry{
		ModelName:   "coordinator_condition",
		RecordID:    condition.ID,
		RecordName:  condition.SubjectName,
		UserID:      optionalID(userID),
		Action:      models.AuditActionWrite,
		Description: "condition " + string(to),
		OldValues:   map[string]string{"state": string(old)},
		NewValues:   map[string]string{"state": string(to)},
	})
	return condition, nil
}
