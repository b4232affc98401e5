package dto

import "github.com/acmst-college/admission-api/internal/models"

// DashboardResponse captures the aggregated admission dashboard payload.
type DashboardResponse struct {
	Pipeline   PipelineSection            `json:"pipeline"`
	Conditions models.ConditionSummary    `json:"conditions"`
	Emails     models.PendingEmailSummary `json:"emails"`
}

// PipelineSection summarises where files sit in the pipeline.
type PipelineSection struct {
	Total      int            `json:"total"`
	InProgress int            `json:"inProgress"`
	Completed  int            `json:"completed"`
	Cancelled  int            `json:"cancelled"`
	Rejected   int            `json:"rejected"`
	ByState    map[string]int `json:"byState"`
}
