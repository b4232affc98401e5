package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmst-college/admission-api/internal/models"
)

func TestAuditCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{
		ModelName: "admission_file",
		RecordID:  "file-1",
		Action:    models.AuditActionWorkflow,
	}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.SeverityLow, entry.Severity)
	assert.Equal(t, models.CategoryOther, entry.Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditCleanupOnlyLowAndMedium(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("DELETE FROM audit_logs").WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := repo.Cleanup(context.Background(), time.Now().AddDate(0, 0, -365))
	require.NoError(t, err)
	assert.EqualValues(t, 42, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "model_name", "record_id", "record_name", "user_id", "action", "description",
		"old_values", "new_values", "changed_fields", "ip_address", "user_agent",
		"severity", "category", "is_sensitive", "is_anomaly", "anomaly_reason", "created_at",
	}).AddRow(
		"a1", "admission_file", "file-1", "ADM-2026-000001", "user-1", "workflow", "state change",
		nil, nil, nil, "10.0.0.1", "curl",
		"medium", "workflow", false, false, "", now,
	)
	mock.ExpectQuery("SELECT .+ FROM audit_logs").WillReturnRows(rows)

	entries, err := repo.List(context.Background(), models.AuditFilter{RecordID: "file-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionWorkflow, entries[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
