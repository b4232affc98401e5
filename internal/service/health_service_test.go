package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type memHealthStore struct {
	checks map[string]*models.HealthCheck
	seq    int
}

func newMemHealthStore() *memHealthStore {
	return &memHealthStore{checks: make(map[string]*models.HealthCheck)}
}

func (m *memHealthStore) Create(ctx context.Context, check *models.HealthCheck) error {
	if check.ID == "" {
		m.seq++
		check.ID = fmt.Sprintf("hc-%d", m.seq)
	}
	if check.State == "" {
		check.State = models.HealthDraft
	}
	copied := *check
	m.checks[check.ID] = &copied
	return nil
}

func (m *memHealthStore) GetByID(ctx context.Context, id string) (*models.HealthCheck, error) {
	check, ok := m.checks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *check
	return &copied, nil
}

func (m *memHealthStore) ListByFile(ctx context.Context, fileID string) ([]models.HealthCheck, error) {
	var out []models.HealthCheck
	for _, check := range m.checks {
		if check.AdmissionFileID == fileID {
			out = append(out, *check)
		}
	}
	return out, nil
}

func (m *memHealthStore) Update(ctx context.Context, check *models.HealthCheck) error {
	stored, ok := m.checks[check.ID]
	if !ok || stored.State != models.HealthDraft {
		return sql.ErrNoRows
	}
	copied := *check
	m.checks[check.ID] = &copied
	return nil
}

func (m *memHealthStore) UpdateState(ctx context.Context, id string, from, to models.HealthCheckState) error {
	stored, ok := m.checks[id]
	if !ok || stored.State != from {
		return sql.ErrNoRows
	}
	stored.State = to
	return nil
}

type stubCascade struct {
	approved []string
	rejected []string
	reasons  []string
}

func (s *stubCascade) HealthApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	s.approved = append(s.approved, id)
	return &models.AdmissionFile{ID: id, State: models.StateCoordinatorReview}, nil
}

func (s *stubCascade) HealthReject(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	s.rejected = append(s.rejected, id)
	s.reasons = append(s.reasons, req.Comments)
	return &models.AdmissionFile{ID: id, State: models.StateHealthRejected}, nil
}

type healthFixture struct {
	svc     *HealthService
	store   *memHealthStore
	files   *memAdmissionStore
	cascade *stubCascade
}

func newHealthFixture(t *testing.T, fileState models.AdmissionState) (*healthFixture, *models.AdmissionFile) {
	t.Helper()
	files := newMemAdmissionStore()
	file := &models.AdmissionFile{
		FileNumber: "ADM-2026-000077",
		State:      fileState,
	}
	require.NoError(t, files.Create(context.Background(), file))

	fx := &healthFixture{
		store:   newMemHealthStore(),
		files:   files,
		cascade: &stubCascade{},
	}
	fx.svc = NewHealthService(fx.store, fx.files, &stubAudit{}, zap.NewNop())
	fx.svc.SetCascade(fx.cascade)
	return fx, file
}

func (fx *healthFixture) submitted(t *testing.T, fileID string, fitness models.MedicalFitness) *models.HealthCheck {
	t.Helper()
	check := &models.HealthCheck{
		AdmissionFileID: fileID,
		ExaminerID:      "examiner-1",
		State:           models.HealthSubmitted,
		MedicalFitness:  fitness,
	}
	require.NoError(t, fx.store.Create(context.Background(), check))
	return check
}

func TestHealthCheckCreateRequiresHealthStage(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateCoordinatorReview)
	_, err := fx.svc.Create(context.Background(), file.ID, "examiner-1", dto.HealthCheckRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestHealthCheckSubmitRequiresFitnessAssessment(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateHealthRequired)
	created, err := fx.svc.Create(context.Background(), file.ID, "examiner-1", dto.HealthCheckRequest{BloodType: "O+"})
	require.NoError(t, err)

	_, err = fx.svc.Submit(context.Background(), created.ID, "examiner-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIncompleteData.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Update(context.Background(), created.ID, "examiner-1", dto.HealthCheckRequest{
		BloodType:      "O+",
		MedicalFitness: models.FitnessFit,
	})
	require.NoError(t, err)

	submitted, err := fx.svc.Submit(context.Background(), created.ID, "examiner-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthSubmitted, submitted.State)
}

func TestHealthApprovalCascadesFitApplicant(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateHealthRequired)
	check := fx.submitted(t, file.ID, models.FitnessFit)

	approved, err := fx.svc.Approve(context.Background(), check.ID, "approver-1", dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.HealthApproved, approved.State)
	require.Len(t, fx.cascade.approved, 1)
	assert.Equal(t, file.ID, fx.cascade.approved[0])
	assert.Empty(t, fx.cascade.rejected)
}

func TestHealthApprovalCascadesUnfitAsRejection(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateHealthRequired)
	check := fx.submitted(t, file.ID, models.FitnessUnfit)

	approved, err := fx.svc.Approve(context.Background(), check.ID, "approver-1", dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.HealthApproved, approved.State)
	assert.Empty(t, fx.cascade.approved)
	require.Len(t, fx.cascade.rejected, 1)
	assert.Equal(t, file.ID, fx.cascade.rejected[0])
	assert.Equal(t, "medically unfit", fx.cascade.reasons[0])
}

func TestHealthRejectLeavesParentUntouched(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateHealthRequired)
	check := fx.submitted(t, file.ID, models.FitnessFit)

	rejected, err := fx.svc.Reject(context.Background(), check.ID, "approver-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthRejected, rejected.State)
	assert.Empty(t, fx.cascade.approved)
	assert.Empty(t, fx.cascade.rejected)
}

func TestHealthResetReopensRejectedCheck(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateHealthRequired)
	check := fx.submitted(t, file.ID, models.FitnessFit)

	_, err := fx.svc.Reject(context.Background(), check.ID, "approver-1")
	require.NoError(t, err)

	reset, err := fx.svc.Reset(context.Background(), check.ID, "examiner-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthDraft, reset.State)

	// Only rejected checks can be reset.
	_, err = fx.svc.Reset(context.Background(), check.ID, "examiner-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestHealthApproveRejectsNonSubmitted(t *testing.T) {
	fx, file := newHealthFixture(t, models.StateHealthRequired)
	created, err := fx.svc.Create(context.Background(), file.ID, "examiner-1", dto.HealthCheckRequest{})
	require.NoError(t, err)

	_, err = fx.svc.Approve(context.Background(), created.ID, "approver-1", dto.DecisionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}
