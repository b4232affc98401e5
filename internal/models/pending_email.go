package models

import "time"

// PendingEmailState tracks a queued notification awaiting delivery.
type PendingEmailState string

const (
	EmailPending   PendingEmailState = "pending"
	EmailSent      PendingEmailState = "sent"
	EmailFailed    PendingEmailState = "failed"
	EmailCancelled PendingEmailState = "cancelled"
)

// EmailPriority orders the retry queue.
type EmailPriority string

const (
	PriorityLow    EmailPriority = "low"
	PriorityMedium EmailPriority = "medium"
	PriorityHigh   EmailPriority = "high"
	PriorityUrgent EmailPriority = "urgent"
)

// retryDelays implements the exponential backoff schedule between attempts.
var retryDelays = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// PendingEmail is a durably queued notification created whenever immediate
// delivery failed. Entries are retried up to MaxRetries and then marked
// failed; they are never silently dropped.
type PendingEmail struct {
	ID            string            `db:"id" json:"id"`
	TemplateRef   string            `db:"template_ref" json:"template_ref"`
	RecordID      string            `db:"record_id" json:"record_id"`
	ModelName     string            `db:"model_name" json:"model_name"`
	RecordName    string            `db:"record_name" json:"record_name,omitempty"`
	State         PendingEmailState `db:"state" json:"state"`
	Priority      EmailPriority     `db:"priority" json:"priority"`
	RetryCount    int               `db:"retry_count" json:"retry_count"`
	MaxRetries    int               `db:"max_retries" json:"max_retries"`
	LastAttemptAt *time.Time        `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	ErrorMessage  string            `db:"error_message" json:"error_message,omitempty"`
	CreatedBy     *string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// NextRetryAt computes when this entry becomes due again, using the backoff
// schedule keyed by the number of attempts already made.
func (e *PendingEmail) NextRetryAt() time.Time {
	base := e.CreatedAt
	if e.LastAttemptAt != nil {
		base = *e.LastAttemptAt
	}
	idx := e.RetryCount
	if idx >= len(retryDelays) {
		idx = len(retryDelays) - 1
	}
	return base.Add(retryDelays[idx])
}

// ReadyForRetry reports whether the entry should be attempted now.
func (e *PendingEmail) ReadyForRetry(now time.Time) bool {
	if e.State != EmailPending || e.RetryCount >= e.MaxRetries {
		return false
	}
	return !e.NextRetryAt().After(now)
}

// PendingEmailFilter constrains listing queries.
type PendingEmailFilter struct {
	States   []PendingEmailState
	Priority EmailPriority
	RecordID string
	Limit    int
	Offset   int
}

// PendingEmailSummary aggregates queue counts for the dashboard.
type PendingEmailSummary struct {
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}
