package dto

import (
	"time"

	"github.com/acmst-college/admission-api/internal/models"
)

// HealthCheckRequest is the questionnaire and assessment payload used for
// both creating and updating a draft health check.
type HealthCheckRequest struct {
	HasChronicDiseases     bool   `json:"hasChronicDiseases"`
	ChronicDiseasesDetails string `json:"chronicDiseasesDetails"`
	TakesMedications       bool   `json:"takesMedications"`
	MedicationsDetails     string `json:"medicationsDetails"`
	HasAllergies           bool   `json:"hasAllergies"`
	AllergiesDetails       string `json:"allergiesDetails"`
	HasDisabilities        bool   `json:"hasDisabilities"`
	DisabilitiesDetails    string `json:"disabilitiesDetails"`

	BloodType string  `json:"bloodType"`
	HeightCM  float64 `json:"heightCm"`
	WeightKG  float64 `json:"weightKg"`

	MedicalFitness   models.MedicalFitness `json:"medicalFitness"`
	MedicalNotes     string                `json:"medicalNotes"`
	Restrictions     string                `json:"restrictions"`
	FollowUpRequired bool                  `json:"followUpRequired"`
	FollowUpDate     *time.Time            `json:"followUpDate"`
}

// HealthCheckResponse augments the record with derived values.
type HealthCheckResponse struct {
	models.HealthCheck
	BMI         float64 `json:"bmi"`
	BMICategory string  `json:"bmiCategory"`
}
