package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/pkg/storage"
)

type auditSourceStub struct{}

func (auditSourceStub) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	actor := "user-1"
	return []models.AuditLog{
		{
			ID:          "log-1",
			ModelName:   "admission_file",
			RecordID:    "file-1",
			UserID:      &actor,
			Action:      models.AuditActionApproval,
			Category:    models.CategoryWorkflow,
			Severity:    models.SeverityMedium,
			Description: "ministry approval",
			CreatedAt:   time.Now().UTC(),
		},
	}, nil
}

type admissionSourceStub struct{}

func (admissionSourceStub) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionFile, int, error) {
	return []models.AdmissionFile{
		{
			ID:              "file-1",
			FileNumber:      "ADM-2026-000001",
			ApplicantName:   "Sara Ali",
			NationalID:      "1234567890",
			ProgramID:       "prog-1",
			BatchID:         "batch-1",
			State:           models.StateCoordinatorReview,
			ApplicationDate: time.Now().UTC(),
		},
	}, 1, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(auditSourceStub{}, admissionSourceStub{}, store, signer, &stubAudit{}, cfg, zap.NewNop())
	return svc, store
}

func TestExportAuditTrailCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	result, err := svc.ExportAuditTrail(context.Background(), dto.AuditQuery{}, FormatCSV, "admin")
	require.NoError(t, err)
	require.Equal(t, "csv", result.Format)
	require.Contains(t, result.DownloadURL, "/exports/")

	_, relPath, _, err := svc.ParseToken(result.DownloadURL[len("/api/v1/exports/"):], false)
	require.NoError(t, err)
	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportAdmissionsPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	result, err := svc.ExportAdmissions(context.Background(), dto.AdmissionQuery{}, FormatPDF, "admin")
	require.NoError(t, err)
	require.Equal(t, "pdf", result.Format)

	_, relPath, _, err := svc.ParseToken(result.DownloadURL[len("/api/v1/exports/"):], false)
	require.NoError(t, err)
	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.ExportAuditTrail(context.Background(), dto.AuditQuery{}, ExportFormat("xlsx"), "admin")
	require.Error(t, err)
}
