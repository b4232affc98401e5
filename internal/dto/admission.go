package dto

import (
	"time"

	"github.com/acmst-college/admission-api/internal/models"
)

// GuardianPayload describes one guardian contact on file creation.
type GuardianPayload struct {
	Name         string                      `json:"name"`
	Relationship models.GuardianRelationship `json:"relationship"`
	Phone        string                      `json:"phone"`
	Email        string                      `json:"email"`
	IsDefault    bool                        `json:"isDefault"`
}

// CreateAdmissionRequest payload for registering a new application.
type CreateAdmissionRequest struct {
	ApplicantName    string                  `json:"applicantName"`
	NationalID       string                  `json:"nationalId"`
	Email            string                  `json:"email"`
	Phone            string                  `json:"phone"`
	Gender           models.Gender           `json:"gender"`
	BirthDate        time.Time               `json:"birthDate"`
	Nationality      string                  `json:"nationality"`
	Address          string                  `json:"address"`
	EmergencyContact string                  `json:"emergencyContact"`
	EmergencyPhone   string                  `json:"emergencyPhone"`
	ProgramID        string                  `json:"programId"`
	BatchID          string                  `json:"batchId"`
	SubmissionMethod models.SubmissionMethod `json:"submissionMethod"`
	Guardians        []GuardianPayload       `json:"guardians"`
}

// UpdateAdmissionRequest payload for correcting applicant data before review.
type UpdateAdmissionRequest struct {
	ApplicantName    string        `json:"applicantName"`
	NationalID       string        `json:"nationalId"`
	Email            string        `json:"email"`
	Phone            string        `json:"phone"`
	Gender           models.Gender `json:"gender"`
	BirthDate        time.Time     `json:"birthDate"`
	Nationality      string        `json:"nationality"`
	Address          string        `json:"address"`
	EmergencyContact string        `json:"emergencyContact"`
	EmergencyPhone   string        `json:"emergencyPhone"`
	ProgramID        string        `json:"programId"`
	BatchID          string        `json:"batchId"`
}

// DecisionRequest records an approve/reject decision at any review stage.
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// ConditionPayload is one academic prerequisite in a conditional approval.
type ConditionPayload struct {
	SubjectName string               `json:"subjectName"`
	SubjectCode string               `json:"subjectCode"`
	Level       models.AcademicLevel `json:"level"`
	Description string               `json:"description"`
	Deadline    *time.Time           `json:"deadline"`
}

// ConditionalApprovalRequest payload for a coordinator conditional decision.
type ConditionalApprovalRequest struct {
	Level      models.AcademicLevel `json:"level"`
	Comments   string               `json:"comments"`
	Conditions []ConditionPayload   `json:"conditions"`
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// AdmissionQuery mirrors supported listing filters.
type AdmissionQuery struct {
	States        []models.AdmissionState
	ProgramID     string
	BatchID       string
	CoordinatorID string
	Search        string
	Page          int
	PageSize      int
}

// RevalidationResult itemises the violations found when re-running the
// completeness checks on a file.
type RevalidationResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}
