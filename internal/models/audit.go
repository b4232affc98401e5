package models

import "time"

// AuditAction classifies what happened.
type AuditAction string

const (
	AuditActionCreate            AuditAction = "create"
	AuditActionWrite             AuditAction = "write"
	AuditActionDelete            AuditAction = "unlink"
	AuditActionWorkflow          AuditAction = "workflow"
	AuditActionApproval          AuditAction = "approval"
	AuditActionRejection         AuditAction = "rejection"
	AuditActionCompletion        AuditAction = "completion"
	AuditActionCancellation      AuditAction = "cancellation"
	AuditActionLogin             AuditAction = "login"
	AuditActionLogout            AuditAction = "logout"
	AuditActionPasswordChange    AuditAction = "password_change"
	AuditActionEmail             AuditAction = "email"
	AuditActionExport            AuditAction = "export"
	AuditActionPortalAccess      AuditAction = "portal_access"
	AuditActionSecurityViolation AuditAction = "security_violation"
	AuditActionOther             AuditAction = "other"
)

// SecurityActions returns the action set treated as security events.
func SecurityActions() []AuditAction {
	return []AuditAction{AuditActionSecurityViolation}
}

// AuditCategory groups entries for reporting.
type AuditCategory string

const (
	CategoryDataModification AuditCategory = "data_modification"
	CategoryWorkflow         AuditCategory = "workflow"
	CategorySecurity         AuditCategory = "security"
	CategorySystem           AuditCategory = "system"
	CategoryPortal           AuditCategory = "portal"
	CategoryReport           AuditCategory = "report"
	CategoryOther            AuditCategory = "other"
)

// AuditSeverity ranks entries; cleanup only ever purges low/medium.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditLog is an immutable, append-only trail entry. Existing rows are
// never mutated; retention cleanup may delete old low/medium entries.
type AuditLog struct {
	ID            string        `db:"id" json:"id"`
	ModelName     string        `db:"model_name" json:"model_name"`
	RecordID      string        `db:"record_id" json:"record_id"`
	RecordName    string        `db:"record_name" json:"record_name,omitempty"`
	UserID        *string       `db:"user_id" json:"user_id,omitempty"`
	Action        AuditAction   `db:"action" json:"action"`
	Description   string        `db:"description" json:"description,omitempty"`
	OldValues     []byte        `db:"old_values" json:"old_values,omitempty"`
	NewValues     []byte        `db:"new_values" json:"new_values,omitempty"`
	ChangedFields []byte        `db:"changed_fields" json:"changed_fields,omitempty"`
	IPAddress     string        `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string        `db:"user_agent" json:"user_agent,omitempty"`
	Severity      AuditSeverity `db:"severity" json:"severity"`
	Category      AuditCategory `db:"category" json:"category"`
	IsSensitive   bool          `db:"is_sensitive" json:"is_sensitive"`
	IsAnomaly     bool          `db:"is_anomaly" json:"is_anomaly"`
	AnomalyReason string        `db:"anomaly_reason" json:"anomaly_reason,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// AuditFilter constrains trail and report queries.
type AuditFilter struct {
	ModelName string
	RecordID  string
	UserID    string
	Category  AuditCategory
	Actions   []AuditAction
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// AuditReport is the aggregate view over a date range.
type AuditReport struct {
	TotalEntries       int            `json:"total_entries"`
	ByAction           map[string]int `json:"by_action"`
	ByUser             map[string]int `json:"by_user"`
	ByCategory         map[string]int `json:"by_category"`
	BySeverity         map[string]int `json:"by_severity"`
	SecurityViolations int            `json:"security_violations"`
	Anomalies          int            `json:"anomalies"`
	SensitiveEntries   int            `json:"sensitive_entries"`
	From               time.Time      `json:"from"`
	To                 time.Time      `json:"to"`
}
