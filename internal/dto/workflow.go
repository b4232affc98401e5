package dto

import "github.com/acmst-college/admission-api/internal/models"

// CreateWorkflowRequest payload for defining a workflow.
type CreateWorkflowRequest struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	AutoTransitions      bool   `json:"autoTransitions"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

// CreateRuleRequest payload for adding a rule to a workflow.
type CreateRuleRequest struct {
	Name                 string                       `json:"name"`
	FromState            models.AdmissionState        `json:"fromState"`
	ToState              models.AdmissionState        `json:"toState"`
	ActionType           models.WorkflowActionType    `json:"actionType"`
	ConditionType        models.WorkflowConditionType `json:"conditionType"`
	TimeoutHours         int                          `json:"timeoutHours"`
	Priority             int                          `json:"priority"`
	SendNotification     bool                         `json:"sendNotification"`
	NotificationTemplate string                       `json:"notificationTemplate"`
	ErrorMessage         string                       `json:"errorMessage"`
}

// ExecuteWorkflowRequest triggers rule evaluation for one admission file.
type ExecuteWorkflowRequest struct {
	AdmissionFileID string `json:"admissionFileId"`
}

// WorkflowExecutionResult reports what the rule engine did for one file.
type WorkflowExecutionResult struct {
	AdmissionFileID string                `json:"admissionFileId"`
	RulesEvaluated  int                   `json:"rulesEvaluated"`
	RulesMatched    int                   `json:"rulesMatched"`
	Transitioned    bool                  `json:"transitioned"`
	FromState       models.AdmissionState `json:"fromState"`
	ToState         models.AdmissionState `json:"toState,omitempty"`
	Notifications   int                   `json:"notifications"`
	Errors          []string              `json:"errors,omitempty"`
}

// TimeoutSweepResult reports one background timeout pass.
type TimeoutSweepResult struct {
	RulesChecked  int `json:"rulesChecked"`
	FilesMatched  int `json:"filesMatched"`
	Transitioned  int `json:"transitioned"`
	Notifications int `json:"notifications"`
}
