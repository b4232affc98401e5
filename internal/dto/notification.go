package dto

import "github.com/acmst-college/admission-api/internal/models"

// PendingEmailQuery mirrors supported queue listing filters.
type PendingEmailQuery struct {
	States   []models.PendingEmailState
	Priority models.EmailPriority
	RecordID string
	Page     int
	PageSize int
}

// RetrySweepResult reports one pass of the retry worker.
type RetrySweepResult struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
