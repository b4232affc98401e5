package models

import "time"

// HealthCheckState is the lifecycle of a health check record.
type HealthCheckState string

const (
	HealthDraft     HealthCheckState = "draft"
	HealthSubmitted HealthCheckState = "submitted"
	HealthApproved  HealthCheckState = "approved"
	HealthRejected  HealthCheckState = "rejected"
)

// MedicalFitness is the examiner's overall assessment.
type MedicalFitness string

const (
	FitnessFit         MedicalFitness = "fit"
	FitnessUnfit       MedicalFitness = "unfit"
	FitnessConditional MedicalFitness = "conditional"
)

// HealthCheck stores the medical questionnaire and assessment for one
// admission file. Creation is only legal while the parent file is in
// health_required.
type HealthCheck struct {
	ID              string           `db:"id" json:"id"`
	AdmissionFileID string           `db:"admission_file_id" json:"admission_file_id"`
	ExaminerID      string           `db:"examiner_id" json:"examiner_id"`
	CheckDate       time.Time        `db:"check_date" json:"check_date"`
	State           HealthCheckState `db:"state" json:"state"`

	HasChronicDiseases     bool   `db:"has_chronic_diseases" json:"has_chronic_diseases"`
	ChronicDiseasesDetails string `db:"chronic_diseases_details" json:"chronic_diseases_details,omitempty"`
	TakesMedications       bool   `db:"takes_medications" json:"takes_medications"`
	MedicationsDetails     string `db:"medications_details" json:"medications_details,omitempty"`
	HasAllergies           bool   `db:"has_allergies" json:"has_allergies"`
	AllergiesDetails       string `db:"allergies_details" json:"allergies_details,omitempty"`
	HasDisabilities        bool   `db:"has_disabilities" json:"has_disabilities"`
	DisabilitiesDetails    string `db:"disabilities_details" json:"disabilities_details,omitempty"`

	BloodType string  `db:"blood_type" json:"blood_type,omitempty"`
	HeightCM  float64 `db:"height_cm" json:"height_cm,omitempty"`
	WeightKG  float64 `db:"weight_kg" json:"weight_kg,omitempty"`

	MedicalFitness   MedicalFitness `db:"medical_fitness" json:"medical_fitness,omitempty"`
	MedicalNotes     string         `db:"medical_notes" json:"medical_notes,omitempty"`
	Restrictions     string         `db:"restrictions" json:"restrictions,omitempty"`
	FollowUpRequired bool           `db:"follow_up_required" json:"follow_up_required"`
	FollowUpDate     *time.Time     `db:"follow_up_date" json:"follow_up_date,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BMI derived from height and weight; zero when either is missing.
func (h *HealthCheck) BMI() float64 {
	if h.HeightCM <= 0 || h.WeightKG <= 0 {
		return 0
	}
	heightM := h.HeightCM / 100
	return h.WeightKG / (heightM * heightM)
}

// BMICategory maps BMI onto the standard WHO bands.
func (h *HealthCheck) BMICategory() string {
	bmi := h.BMI()
	switch {
	case bmi == 0:
		return "unknown"
	case bmi < 18.5:
		return "underweight"
	case bmi < 25:
		return "normal"
	case bmi < 30:
		return "overweight"
	default:
		return "obese"
	}
}
