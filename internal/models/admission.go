package models

import "time"

// AdmissionState enumerates the lifecycle states of an admission file.
type AdmissionState string

const (
	StateNew                    AdmissionState = "new"
	StateMinistryPending        AdmissionState = "ministry_pending"
	StateMinistryApproved       AdmissionState = "ministry_approved"
	StateMinistryRejected       AdmissionState = "ministry_rejected"
	StateHealthRequired         AdmissionState = "health_required"
	StateHealthApproved         AdmissionState = "health_approved"
	StateHealthRejected         AdmissionState = "health_rejected"
	StateCoordinatorReview      AdmissionState = "coordinator_review"
	StateCoordinatorApproved    AdmissionState = "coordinator_approved"
	StateCoordinatorRejected    AdmissionState = "coordinator_rejected"
	StateCoordinatorConditional AdmissionState = "coordinator_conditional"
	StateManagerReview          AdmissionState = "manager_review"
	StateManagerApproved        AdmissionState = "manager_approved"
	StateManagerRejected        AdmissionState = "manager_rejected"
	StateCompleted              AdmissionState = "completed"
	StateCancelled              AdmissionState = "cancelled"
)

// AllAdmissionStates lists every valid state, in pipeline order.
var AllAdmissionStates = []AdmissionState{
	StateNew,
	StateMinistryPending,
	StateMinistryApproved,
	StateMinistryRejected,
	StateHealthRequired,
	StateHealthApproved,
	StateHealthRejected,
	StateCoordinatorReview,
	StateCoordinatorApproved,
	StateCoordinatorRejected,
	StateCoordinatorConditional,
	StateManagerReview,
	StateManagerApproved,
	StateManagerRejected,
	StateCompleted,
	StateCancelled,
}

// Valid reports whether s is a known admission state.
func (s AdmissionState) Valid() bool {
	for _, known := range AllAdmissionStates {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further pipeline progress is possible.
func (s AdmissionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// SubmissionMethod records how the application entered the system.
type SubmissionMethod string

const (
	SubmissionPortal SubmissionMethod = "portal"
	SubmissionOffice SubmissionMethod = "office"
)

// Gender for applicant identity data.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// AcademicLevel assigned during conditional coordinator approval.
type AcademicLevel string

const (
	LevelTwo   AcademicLevel = "level2"
	LevelThree AcademicLevel = "level3"
)

// AdmissionFile is the central applicant record tracked through the
// approval pipeline. FileNumber is assigned on the first transition out of
// "new" and immutable afterwards; StudentID is set iff State is completed.
type AdmissionFile struct {
	ID               string           `db:"id" json:"id"`
	FileNumber       string           `db:"file_number" json:"file_number"`
	ApplicantName    string           `db:"applicant_name" json:"applicant_name"`
	NationalID       string           `db:"national_id" json:"national_id"`
	Email            string           `db:"email" json:"email"`
	Phone            string           `db:"phone" json:"phone"`
	Gender           Gender           `db:"gender" json:"gender"`
	BirthDate        time.Time        `db:"birth_date" json:"birth_date"`
	Nationality      string           `db:"nationality" json:"nationality"`
	Address          string           `db:"address" json:"address"`
	EmergencyContact string           `db:"emergency_contact" json:"emergency_contact"`
	EmergencyPhone   string           `db:"emergency_phone" json:"emergency_phone"`
	ProgramID        string           `db:"program_id" json:"program_id"`
	BatchID          string           `db:"batch_id" json:"batch_id"`
	AcademicLevel    *AcademicLevel   `db:"academic_level" json:"academic_level,omitempty"`
	State            AdmissionState   `db:"state" json:"state"`
	SubmissionMethod SubmissionMethod `db:"submission_method" json:"submission_method"`
	ApplicationDate  time.Time        `db:"application_date" json:"application_date"`

	MinistryApprovalDate    *time.Time `db:"ministry_approval_date" json:"ministry_approval_date,omitempty"`
	MinistryApproverID      *string    `db:"ministry_approver_id" json:"ministry_approver_id,omitempty"`
	HealthCheckDate         *time.Time `db:"health_check_date" json:"health_check_date,omitempty"`
	HealthApproverID        *string    `db:"health_approver_id" json:"health_approver_id,omitempty"`
	CoordinatorApprovalDate *time.Time `db:"coordinator_approval_date" json:"coordinator_approval_date,omitempty"`
	CoordinatorID           *string    `db:"coordinator_id" json:"coordinator_id,omitempty"`
	ManagerApprovalDate     *time.Time `db:"manager_approval_date" json:"manager_approval_date,omitempty"`
	ManagerID               *string    `db:"manager_id" json:"manager_id,omitempty"`
	StudentID               *string    `db:"student_id" json:"student_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Age in full years at the reference date.
func (f *AdmissionFile) Age(at time.Time) int {
	if f.BirthDate.IsZero() {
		return 0
	}
	years := at.Year() - f.BirthDate.Year()
	anniversary := f.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// AdmissionFilter constrains listing queries.
type AdmissionFilter struct {
	States        []AdmissionState
	ProgramID     string
	BatchID       string
	CoordinatorID string
	Search        string
	Page          int
	PageSize      int
}

// AdmissionDetail bundles a file with its owned collections for read APIs.
type AdmissionDetail struct {
	File         AdmissionFile          `json:"file"`
	Guardians    []Guardian             `json:"guardians"`
	HealthChecks []HealthCheck          `json:"health_checks"`
	Conditions   []CoordinatorCondition `json:"conditions"`
	Approvals    []ApprovalRecord       `json:"approvals"`
}
