package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/repository"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type workflowStore interface {
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context) ([]models.Workflow, error)
	SetWorkflowActive(ctx context.Context, id string, active bool) error
	CreateRule(ctx context.Context, rule *models.WorkflowRule) error
	GetRule(ctx context.Context, id string) (*models.WorkflowRule, error)
	ListRules(ctx context.Context, workflowID string) ([]models.WorkflowRule, error)
	ListActiveRulesForState(ctx context.Context, state models.AdmissionState) ([]models.WorkflowRule, error)
	ListActiveTimeoutRules(ctx context.Context) ([]models.WorkflowRule, error)
	SetRuleActive(ctx context.Context, id string, active bool) error
	DeleteRule(ctx context.Context, id string) error
}

type ruleTargetStore interface {
	GetByID(ctx context.Context, id string) (*models.AdmissionFile, error)
	UpdateState(ctx context.Context, params repository.UpdateStateParams) error
	ListByStateOlderThan(ctx context.Context, state models.AdmissionState, cutoff time.Time, limit int) ([]models.AdmissionFile, error)
}

// WorkflowService is the declarative rule engine: a secondary, data-driven
// path that evaluates configured rules against admission files,
// independently of the hardcoded transition methods.
type WorkflowService struct {
	rules  workflowStore
	files  ruleTargetStore
	notify notifier
	audit  auditRecorder
	logger *zap.Logger

	timeoutBatch int
}

// NewWorkflowService constructs the service.
func NewWorkflowService(rules workflowStore, files ruleTargetStore, notify notifier, audit auditRecorder, logger *zap.Logger, timeoutBatch int) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeoutBatch <= 0 {
		timeoutBatch = 100
	}
	return &WorkflowService{
		rules:        rules,
		files:        files,
		notify:       notify,
		audit:        audit,
		logger:       logger,
		timeoutBatch: timeoutBatch,
	}
}

// CreateWorkflow defines a new workflow.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, req dto.CreateWorkflowRequest, userID string) (*models.Workflow, error) {
	if req.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "workflow name is required")
	}
	workflow := &models.Workflow{
		Name:                 req.Name,
		Description:          req.Description,
		Active:               true,
		AutoTransitions:      req.AutoTransitions,
		NotificationsEnabled: req.NotificationsEnabled,
	}
	if err := s.rules.CreateWorkflow(ctx, workflow); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "workflow",
		RecordID:    workflow.ID,
		RecordName:  workflow.Name,
		UserID:      optionalID(userID),
		Action:      models.AuditActionCreate,
		Description: "workflow created",
		NewValues:   workflow,
	})
	return workflow, nil
}

// ListWorkflows returns every workflow.
func (s *WorkflowService) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	workflows, err := s.rules.ListWorkflows(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflows")
	}
	return workflows, nil
}

// SetWorkflowActive toggles a workflow.
func (s *WorkflowService) SetWorkflowActive(ctx context.Context, id string, active bool, userID string) error {
	if err := s.rules.SetWorkflowActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle workflow")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "workflow",
		RecordID:    id,
		UserID:      optionalID(userID),
		Action:      models.AuditActionWrite,
		Description: "workflow active toggled",
		NewValues:   map[string]bool{"active": active},
	})
	return nil
}

// AddRule validates and stores a rule under a workflow.
func (s *WorkflowService) AddRule(ctx context.Context, workflowID string, req dto.CreateRuleRequest, userID string) (*models.WorkflowRule, error) {
	if _, err := s.rules.GetWorkflow(ctx, workflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	rule := &models.WorkflowRule{
		WorkflowID:           workflowID,
		Name:                 req.Name,
		FromState:            req.FromState,
		ToState:              req.ToState,
		ActionType:           req.ActionType,
		ConditionType:        req.ConditionType,
		TimeoutHours:         req.TimeoutHours,
		Priority:             req.Priority,
		Active:               true,
		SendNotification:     req.SendNotification,
		NotificationTemplate: req.NotificationTemplate,
		ErrorMessage:         req.ErrorMessage,
	}
	if err := rule.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRuleValidationFailed.Code, appErrors.ErrRuleValidationFailed.Status, err.Error())
	}
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rule")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "workflow_rule",
		RecordID:    rule.ID,
		RecordName:  rule.Name,
		UserID:      optionalID(userID),
		Action:      models.AuditActionCreate,
		Description: "workflow rule created",
		NewValues:   rule,
	})
	return rule, nil
}

// ListRules returns the rules of one workflow in priority order.
func (s *WorkflowService) ListRules(ctx context.Context, workflowID string) ([]models.WorkflowRule, error) {
	rules, err := s.rules.ListRules(ctx, workflowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rules")
	}
	return rules, nil
}

// SetRuleActive toggles one rule.
func (s *WorkflowService) SetRuleActive(ctx context.Context, id string, active bool, userID string) error {
	if err := s.rules.SetRuleActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle rule")
	}
	return nil
}

// DeleteRule removes a rule definition.
func (s *WorkflowService) DeleteRule(ctx context.Context, id string, userID string) error {
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete rule")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "workflow_rule",
		RecordID:    id,
		UserID:      optionalID(userID),
		Action:      models.AuditActionDelete,
		Description: "workflow rule deleted",
	})
	return nil
}

// Execute evaluates every active rule matching the file's current state, in
// priority order, and performs the matching actions. Validation rules act as
// hard gates: their condition must hold, and the first gate whose condition
// is false aborts the run with RuleValidationFailed before any state is
// touched. Transition rules write state directly through the guarded update;
// this is the intentional secondary path for configured automation.
func (s *WorkflowService) Execute(ctx context.Context, fileID string) (*dto.WorkflowExecutionResult, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission file")
	}

	result := &dto.WorkflowExecutionResult{
		AdmissionFileID: file.ID,
		FromState:       file.State,
	}
	rules, err := s.rules.ListActiveRulesForState(ctx, file.State)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rules")
	}
	now := time.Now().UTC()

	// Gates first: no action runs while a validation condition is unmet.
	for i := range rules {
		rule := &rules[i]
		if rule.ActionType != models.ActionValidation {
			continue
		}
		result.RulesEvaluated++
		if rule.Matches(file, now) {
			result.RulesMatched++
			continue
		}
		message := rule.ErrorMessage
		if message == "" {
			message = "rule validation failed: " + rule.Name
		}
		result.Errors = append(result.Errors, message)
		return result, appErrors.Clone(appErrors.ErrRuleValidationFailed, message)
	}

	for i := range rules {
		rule := &rules[i]
		if rule.ActionType == models.ActionValidation {
			continue
		}
		result.RulesEvaluated++
		if !rule.Matches(file, now) {
			continue
		}
		result.RulesMatched++

		switch rule.ActionType {
		case models.ActionTransition, models.ActionTimeout:
			if result.Transitioned {
				// One state write per execution; later transition rules
				// no longer match the old state anyway.
				continue
			}
			if err := s.applyTransition(ctx, file, rule); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Transitioned = true
			result.ToState = rule.ToState
			if rule.SendNotification {
				s.sendRuleNotification(ctx, file, rule)
				result.Notifications++
			}
		case models.ActionNotification:
			s.sendRuleNotification(ctx, file, rule)
			result.Notifications++
		}
	}
	return result, nil
}

// ProcessTimeouts runs every active timeout rule against the files that have
// sat in the rule's from-state longer than its window. Intended to run from
// the scheduler.
func (s *WorkflowService) ProcessTimeouts(ctx context.Context) (*dto.TimeoutSweepResult, error) {
	result := &dto.TimeoutSweepResult{}
	rules, err := s.rules.ListActiveTimeoutRules(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeout rules")
	}
	now := time.Now().UTC()

	for i := range rules {
		rule := &rules[i]
		result.RulesChecked++
		if rule.TimeoutHours <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(rule.TimeoutHours) * time.Hour)
		files, err := s.files.ListByStateOlderThan(ctx, rule.FromState, cutoff, s.timeoutBatch)
		if err != nil {
			s.logger.Sugar().Warnw("timeout rule scan failed", "rule", rule.Name, "error", err)
			continue
		}
		for j := range files {
			file := &files[j]
			result.FilesMatched++
			if err := s.applyTransition(ctx, file, rule); err != nil {
				// Lost race or concurrent manual action; skip quietly.
				continue
			}
			result.Transitioned++
			if rule.SendNotification {
				s.sendRuleNotification(ctx, file, rule)
				result.Notifications++
			}
		}
	}
	return result, nil
}

func (s *WorkflowService) applyTransition(ctx context.Context, file *models.AdmissionFile, rule *models.WorkflowRule) error {
	from := file.State
	if err := s.files.UpdateState(ctx, repository.UpdateStateParams{
		ID:        file.ID,
		FromState: from,
		ToState:   rule.ToState,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "file state changed during rule execution")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply rule transition")
	}
	file.State = rule.ToState
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "admission_file",
		RecordID:    file.ID,
		RecordName:  file.FileNumber,
		Action:      models.AuditActionWorkflow,
		Description: "rule transition: " + rule.Name,
		OldValues:   map[string]string{"state": string(from)},
		NewValues:   map[string]string{"state": string(rule.ToState)},
	})
	return nil
}

func (s *WorkflowService) sendRuleNotification(ctx context.Context, file *models.AdmissionFile, rule *models.WorkflowRule) {
	if s.notify == nil {
		return
	}
	templateRef := rule.NotificationTemplate
	if templateRef == "" {
		templateRef = "admission_timeout_reminder"
	}
	s.notify.Notify(ctx, Notification{
		TemplateRef: templateRef,
		ModelName:   "admission_file",
		RecordID:    file.ID,
		RecordName:  file.FileNumber,
		Priority:    models.PriorityMedium,
	})
}
