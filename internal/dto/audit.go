package dto

import (
	"time"

	"github.com/acmst-college/admission-api/internal/models"
)

// AuditQuery mirrors supported trail listing filters.
type AuditQuery struct {
	ModelName string
	RecordID  string
	UserID    string
	Category  models.AuditCategory
	Actions   []models.AuditAction
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

// AuditReportQuery selects the date range for the aggregate report.
type AuditReportQuery struct {
	From time.Time
	To   time.Time
}

// AuditExportResult points at a generated report file.
type AuditExportResult struct {
	FileName    string    `json:"fileName"`
	Format      string    `json:"format"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
