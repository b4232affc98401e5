package models

import "time"

// ApprovalType identifies which stage of the pipeline recorded a decision.
type ApprovalType string

const (
	ApprovalMinistry    ApprovalType = "ministry"
	ApprovalHealth      ApprovalType = "health"
	ApprovalCoordinator ApprovalType = "coordinator"
	ApprovalManager     ApprovalType = "manager"
	ApprovalCompletion  ApprovalType = "completion"
)

// ApprovalDecision is the outcome recorded by an approval record.
type ApprovalDecision string

const (
	DecisionPending     ApprovalDecision = "pending"
	DecisionApproved    ApprovalDecision = "approved"
	DecisionRejected    ApprovalDecision = "rejected"
	DecisionConditional ApprovalDecision = "conditional"
	DecisionCompleted   ApprovalDecision = "completed"
)

// ApprovalRecord is an immutable fact in the approval history of an
// admission file. Records are appended, never updated or deleted.
type ApprovalRecord struct {
	ID              string           `db:"id" json:"id"`
	AdmissionFileID string           `db:"admission_file_id" json:"admission_file_id"`
	ApproverID      *string          `db:"approver_id" json:"approver_id,omitempty"`
	Type            ApprovalType     `db:"approval_type" json:"approval_type"`
	Decision        ApprovalDecision `db:"decision" json:"decision"`
	Comments        string           `db:"comments" json:"comments"`
	ApprovalDate    time.Time        `db:"approval_date" json:"approval_date"`
}
