package models

import (
	"fmt"
	"time"
)

// WorkflowActionType is what a rule does when it matches.
type WorkflowActionType string

const (
	ActionTransition   WorkflowActionType = "transition"
	ActionNotification WorkflowActionType = "notification"
	ActionValidation   WorkflowActionType = "validation"
	ActionTimeout      WorkflowActionType = "timeout"
)

// WorkflowConditionType selects how a rule's condition is evaluated.
// The legacy free-form expression kind is not supported: rows carrying an
// unknown kind evaluate to false instead of erroring.
type WorkflowConditionType string

const (
	ConditionAlways     WorkflowConditionType = "always"
	ConditionTimeBased  WorkflowConditionType = "time_based"
	ConditionFieldBased WorkflowConditionType = "field_based"
)

// Workflow groups an ordered set of rules evaluated against admission files.
type Workflow struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Description          string    `db:"description" json:"description,omitempty"`
	Active               bool      `db:"active" json:"active"`
	AutoTransitions      bool      `db:"auto_transitions" json:"auto_transitions"`
	NotificationsEnabled bool      `db:"notifications_enabled" json:"notifications_enabled"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// WorkflowRule is one declarative from-state/to-state/condition/action tuple.
type WorkflowRule struct {
	ID                   string                `db:"id" json:"id"`
	WorkflowID           string                `db:"workflow_id" json:"workflow_id"`
	Name                 string                `db:"name" json:"name"`
	FromState            AdmissionState        `db:"from_state" json:"from_state"`
	ToState              AdmissionState        `db:"to_state" json:"to_state"`
	ActionType           WorkflowActionType    `db:"action_type" json:"action_type"`
	ConditionType        WorkflowConditionType `db:"condition_type" json:"condition_type"`
	TimeoutHours         int                   `db:"timeout_hours" json:"timeout_hours"`
	Priority             int                   `db:"priority" json:"priority"`
	Active               bool                  `db:"active" json:"active"`
	SendNotification     bool                  `db:"send_notification" json:"send_notification"`
	NotificationTemplate string                `db:"notification_template" json:"notification_template,omitempty"`
	ErrorMessage         string                `db:"error_message" json:"error_message,omitempty"`
	CreatedAt            time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time             `db:"updated_at" json:"updated_at"`
}

// Validate enforces the structural invariants on a rule definition.
func (r *WorkflowRule) Validate() error {
	if !r.FromState.Valid() || !r.ToState.Valid() {
		return fmt.Errorf("unknown state in rule %q", r.Name)
	}
	if r.FromState == r.ToState {
		return fmt.Errorf("rule %q: from state and to state cannot be the same", r.Name)
	}
	if r.FromState == StateCompleted && r.ToState != StateCancelled {
		return fmt.Errorf("rule %q: completed may only transition to cancelled", r.Name)
	}
	if r.FromState == StateCancelled && r.ToState != StateNew {
		return fmt.Errorf("rule %q: cancelled may only transition to new", r.Name)
	}
	switch r.ActionType {
	case ActionTransition, ActionNotification, ActionValidation, ActionTimeout:
	default:
		return fmt.Errorf("rule %q: unsupported action type %q", r.Name, r.ActionType)
	}
	switch r.ConditionType {
	case ConditionAlways, ConditionTimeBased, ConditionFieldBased:
	default:
		return fmt.Errorf("rule %q: unsupported condition type %q", r.Name, r.ConditionType)
	}
	if r.ActionType == ActionTimeout && r.TimeoutHours <= 0 {
		return fmt.Errorf("rule %q: timeout rules require positive timeout_hours", r.Name)
	}
	return nil
}

// Matches evaluates the rule's condition against a file snapshot.
// Unknown condition kinds (including the dropped legacy expression kind)
// evaluate to false, never to an error.
func (r *WorkflowRule) Matches(file *AdmissionFile, now time.Time) bool {
	if file.State != r.FromState {
		return false
	}
	switch r.ConditionType {
	case ConditionAlways:
		return true
	case ConditionTimeBased:
		if r.TimeoutHours <= 0 {
			return false
		}
		cutoff := now.Add(-time.Duration(r.TimeoutHours) * time.Hour)
		return file.UpdatedAt.Before(cutoff)
	case ConditionFieldBased:
		// Reserved extension point.
		return true
	default:
		return false
	}
}
