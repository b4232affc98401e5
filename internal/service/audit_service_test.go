package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/models"
)

type memAuditStore struct {
	logs      []models.AuditLog
	createErr error
}

func (m *memAuditStore) Create(ctx context.Context, entry *models.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("log-%d", len(m.logs)+1)
	}
	entry.CreatedAt = time.Now().UTC()
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memAuditStore) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	var out []models.AuditLog
	for _, l := range m.logs {
		if filter.ModelName != "" && l.ModelName != filter.ModelName {
			continue
		}
		if filter.RecordID != "" && l.RecordID != filter.RecordID {
			continue
		}
		if filter.UserID != "" && (l.UserID == nil || *l.UserID != filter.UserID) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memAuditStore) ListSecurityViolations(ctx context.Context, from, to time.Time, limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	for _, l := range m.logs {
		if l.Action == models.AuditActionSecurityViolation {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memAuditStore) Report(ctx context.Context, from, to time.Time) (*models.AuditReport, error) {
	return &models.AuditReport{TotalEntries: len(m.logs), From: from, To: to}, nil
}

func (m *memAuditStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []models.AuditLog
	var deleted int64
	for _, l := range m.logs {
		if l.CreatedAt.Before(cutoff) && l.Severity != models.SeverityHigh && l.Severity != models.SeverityCritical {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return deleted, nil
}

func TestRecordDerivesCategoryAndSeverity(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, 365, zap.NewNop())

	svc.Record(context.Background(), AuditEntry{
		ModelName: "admission_file", RecordID: "file-1",
		Action: models.AuditActionApproval, Description: "ministry approval",
	})
	svc.Record(context.Background(), AuditEntry{
		ModelName: "user", RecordID: "user-1",
		Action: models.AuditActionDelete, Description: "user deactivated",
	})

	require.Len(t, store.logs, 2)
	assert.Equal(t, models.CategoryWorkflow, store.logs[0].Category)
	assert.Equal(t, models.SeverityMedium, store.logs[0].Severity)
	assert.Equal(t, models.CategoryDataModification, store.logs[1].Category)
	assert.Equal(t, models.SeverityHigh, store.logs[1].Severity)
}

func TestRecordMarshalsValueSnapshots(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, 365, zap.NewNop())

	svc.Record(context.Background(), AuditEntry{
		ModelName: "admission_file", RecordID: "file-1",
		Action:    models.AuditActionWorkflow,
		OldValues: map[string]string{"state": "ministry_pending"},
		NewValues: map[string]string{"state": "health_required"},
	})

	require.Len(t, store.logs, 1)
	assert.JSONEq(t, `{"state":"ministry_pending"}`, string(store.logs[0].OldValues))
	assert.JSONEq(t, `{"state":"health_required"}`, string(store.logs[0].NewValues))
}

func TestRecordFlagsSecurityViolationsAsAnomalies(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, 365, zap.NewNop())

	svc.Record(context.Background(), AuditEntry{
		ModelName: "auth", RecordID: "user-1",
		Action: models.AuditActionSecurityViolation, Description: "expired portal token replayed",
	})

	require.Len(t, store.logs, 1)
	assert.True(t, store.logs[0].IsAnomaly)
	assert.Equal(t, models.SeverityCritical, store.logs[0].Severity)
	assert.Equal(t, "expired portal token replayed", store.logs[0].AnomalyReason)
}

func TestRecordSwallowsStoreFailures(t *testing.T) {
	store := &memAuditStore{createErr: fmt.Errorf("connection reset")}
	svc := NewAuditService(store, 365, zap.NewNop())

	// Must not panic or surface the error.
	svc.Record(context.Background(), AuditEntry{
		ModelName: "admission_file", RecordID: "file-1", Action: models.AuditActionWrite,
	})
	assert.Empty(t, store.logs)
}

func TestTrailRequiresModelAndRecord(t *testing.T) {
	svc := NewAuditService(&memAuditStore{}, 365, zap.NewNop())
	_, err := svc.Trail(context.Background(), "", "file-1", 1, 10)
	require.Error(t, err)
	_, err = svc.Trail(context.Background(), "admission_file", "", 1, 10)
	require.Error(t, err)
}

func TestTrailFiltersByRecord(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, 365, zap.NewNop())
	svc.Record(context.Background(), AuditEntry{ModelName: "admission_file", RecordID: "file-1", Action: models.AuditActionCreate})
	svc.Record(context.Background(), AuditEntry{ModelName: "admission_file", RecordID: "file-2", Action: models.AuditActionCreate})

	entries, err := svc.Trail(context.Background(), "admission_file", "file-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file-1", entries[0].RecordID)
}

func TestCleanupHonoursRetention(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, 30, zap.NewNop())
	old := time.Now().UTC().AddDate(0, 0, -90)
	store.logs = []models.AuditLog{
		{ID: "log-1", Severity: models.SeverityLow, CreatedAt: old},
		{ID: "log-2", Severity: models.SeverityCritical, CreatedAt: old},
		{ID: "log-3", Severity: models.SeverityLow, CreatedAt: time.Now().UTC()},
	}

	require.NoError(t, svc.Cleanup(context.Background()))
	require.Len(t, store.logs, 2)
	assert.Equal(t, "log-2", store.logs[0].ID)
	assert.Equal(t, "log-3", store.logs[1].ID)
}
