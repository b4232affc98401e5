package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/export"
	"github.com/acmst-college/admission-api/pkg/storage"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

type auditExportSource interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

type admissionExportSource interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionFile, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders audit trails and admission listings to CSV or PDF
// files served through signed download URLs.
type ExportService struct {
	audits     auditExportSource
	admissions admissionExportSource
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	recorder   auditRecorder
	logger     *zap.Logger
	cfg        ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(audits auditExportSource, admissions admissionExportSource, storage fileStorage, signer *storage.SignedURLSigner, recorder auditRecorder, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		audits:     audits,
		admissions: admissions,
		storage:    storage,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		signer:     signer,
		recorder:   recorder,
		logger:     logger,
		cfg:        cfg,
	}
}

// ExportAuditTrail renders the audit entries matching the query.
func (s *ExportService) ExportAuditTrail(ctx context.Context, query dto.AuditQuery, format ExportFormat, userID string) (*dto.AuditExportResult, error) {
	filter := models.AuditFilter{
		ModelName: query.ModelName,
		RecordID:  query.RecordID,
		UserID:    query.UserID,
		Category:  query.Category,
		Actions:   query.Actions,
		From:      query.From,
		To:        query.To,
		Limit:     10000,
	}
	entries, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit entries")
	}

	rows := make([]map[string]string, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		actor := "system"
		if entry.UserID != nil {
			actor = *entry.UserID
		}
		rows = append(rows, map[string]string{
			"Timestamp":   entry.CreatedAt.UTC().Format(time.RFC3339),
			"Model":       entry.ModelName,
			"Record":      entry.RecordID,
			"Actor":       actor,
			"Action":      string(entry.Action),
			"Category":    string(entry.Category),
			"Severity":    string(entry.Severity),
			"Description": entry.Description,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Timestamp", "Model", "Record", "Actor", "Action", "Category", "Severity", "Description"},
		Rows:    rows,
	}
	return s.render(ctx, dataset, "Audit Trail", "audit_trail", format, userID)
}

// ExportAdmissions renders the admission files matching the query.
func (s *ExportService) ExportAdmissions(ctx context.Context, query dto.AdmissionQuery, format ExportFormat, userID string) (*dto.AuditExportResult, error) {
	filter := models.AdmissionFilter{
		States:        query.States,
		ProgramID:     query.ProgramID,
		BatchID:       query.BatchID,
		CoordinatorID: query.CoordinatorID,
		Search:        query.Search,
		Page:          1,
		PageSize:      10000,
	}
	files, _, err := s.admissions.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission files")
	}

	rows := make([]map[string]string, 0, len(files))
	for i := range files {
		file := &files[i]
		rows = append(rows, map[string]string{
			"File Number": file.FileNumber,
			"Applicant":   file.ApplicantName,
			"National ID": file.NationalID,
			"Program":     file.ProgramID,
			"Batch":       file.BatchID,
			"State":       string(file.State),
			"Applied At":  file.ApplicationDate.UTC().Format("2006-01-02"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"File Number", "Applicant", "National ID", "Program", "Batch", "State", "Applied At"},
		Rows:    rows,
	}
	return s.render(ctx, dataset, "Admission Files", "admissions", format, userID)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) render(ctx context.Context, dataset export.Dataset, title, prefix string, format ExportFormat, userID string) (*dto.AuditExportResult, error) {
	var payload []byte
	var err error
	switch format {
	case FormatCSV:
		payload, err = s.csv.Render(dataset)
	case FormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("%s_%s.%s", prefix, time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	if base == "" {
		base = "/api/v1"
	}

	s.recorder.Record(ctx, AuditEntry{
		ModelName:   "export",
		RecordID:    exportID,
		RecordName:  filename,
		UserID:      optionalID(userID),
		Action:      models.AuditActionExport,
		Description: title + " exported",
	})

	return &dto.AuditExportResult{
		FileName:    filename,
		Format:      string(format),
		DownloadURL: fmt.Sprintf("%s/exports/%s", base, token),
		ExpiresAt:   expiresAt,
	}, nil
}
