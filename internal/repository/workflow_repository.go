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

const workflowRuleColumns = `id, workflow_id, name, from_state, to_state, action_type, condition_type,
       timeout_hours, priority, active, send_notification, notification_template, error_message,
       created_at, updated_at`

// WorkflowRepository persists workflows and their rules.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// CreateWorkflow inserts a workflow definition.
func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	const query = `INSERT INTO workflows
	(id, name, description, active, auto_transitions, notifications_enabled, created_at, updated_at)
	VALUES (:id, :name, :description, :active, :auto_transitions, :notifications_enabled, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, workflow); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// GetWorkflow fetches one workflow.
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	const query = `SELECT id, name, description, active, auto_transitions, notifications_enabled, created_at, updated_at
	FROM workflows WHERE id = $1`
	var workflow models.Workflow
	if err := r.db.GetContext(ctx, &workflow, query, id); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// ListWorkflows returns every workflow definition.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	const query = `SELECT id, name, description, active, auto_transitions, notifications_enabled, created_at, updated_at
	FROM workflows ORDER BY name`
	var workflows []models.Workflow
	if err := r.db.SelectContext(ctx, &workflows, query); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// SetWorkflowActive toggles a workflow on or off.
func (r *WorkflowRepository) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE workflows SET active = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set workflow active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow active rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateRule inserts a rule. The caller validates the definition first.
func (r *WorkflowRepository) CreateRule(ctx context.Context, rule *models.WorkflowRule) error {
	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	const query = `INSERT INTO workflow_rules
	(id, workflow_id, name, from_state, to_state, action_type, condition_type, timeout_hours,
	 priority, active, send_notification, notification_template, error_message, created_at, updated_at)
	VALUES (:id, :workflow_id, :name, :from_state, :to_state, :action_type, :condition_type, :timeout_hours,
	 :priority, :active, :send_notification, :notification_template, :error_message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create workflow rule: %w", err)
	}
	return nil
}

// GetRule fetches one rule.
func (r *WorkflowRepository) GetRule(ctx context.Context, id string) (*models.WorkflowRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_rules WHERE id = $1`, workflowRuleColumns)
	var rule models.WorkflowRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns all rules of a workflow ordered by priority.
func (r *WorkflowRepository) ListRules(ctx context.Context, workflowID string) ([]models.WorkflowRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_rules
	WHERE workflow_id = $1 ORDER BY priority, name`, workflowRuleColumns)
	var rules []models.WorkflowRule
	if err := r.db.SelectContext(ctx, &rules, query, workflowID); err != nil {
		return nil, fmt.Errorf("list workflow rules: %w", err)
	}
	return rules, nil
}

// ListActiveRulesForState returns the active rules of active workflows whose
// from-state matches, in priority order. This is the rule engine's read path.
func (r *WorkflowRepository) ListActiveRulesForState(ctx context.Context, state models.AdmissionState) ([]models.WorkflowRule, error) {
	const query = `SELECT r.id, r.workflow_id, r.name, r.from_state, r.to_state, r.action_type, r.condition_type,
	       r.timeout_hours, r.priority, r.active, r.send_notification, r.notification_template, r.error_message,
	       r.created_at, r.updated_at
	FROM workflow_rules r
	JOIN workflows w ON w.id = r.workflow_id
	WHERE r.active AND w.active AND r.from_state = $1
	ORDER BY r.priority, r.name`
	var rules []models.WorkflowRule
	if err := r.db.SelectContext(ctx, &rules, query, state); err != nil {
		return nil, fmt.Errorf("list active workflow rules: %w", err)
	}
	return rules, nil
}

// ListActiveTimeoutRules returns every active timeout rule across workflows.
func (r *WorkflowRepository) ListActiveTimeoutRules(ctx context.Context) ([]models.WorkflowRule, error) {
	const query = `SELECT r.id, r.workflow_id, r.name, r.from_state, r.to_state, r.action_type, r.condition_type,
	       r.timeout_hours, r.priority, r.active, r.send_notification, r.notification_template, r.error_message,
	       r.created_at, r.updated_at
	FROM workflow_rules r
	JOIN workflows w ON w.id = r.workflow_id
	WHERE r.active AND w.active AND r.action_type = 'timeout'
	ORDER BY r.priority, r.name`
	var rules []models.WorkflowRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list timeout rules: %w", err)
	}
	return rules, nil
}

// SetRuleActive toggles one rule.
func (r *WorkflowRepository) SetRuleActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE workflow_rules SET active = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rule active rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRule removes one rule definition.
func (r *WorkflowRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rule rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
