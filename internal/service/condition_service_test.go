package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type memConditionStore struct {
	conditions map[string]*models.CoordinatorCondition
}

func newMemConditionStore() *memConditionStore {
	return &memConditionStore{conditions: make(map[string]*models.CoordinatorCondition)}
}

func (m *memConditionStore) Create(ctx context.Context, condition *models.CoordinatorCondition) error {
	if condition.ID == "" {
		condition.ID = fmt.Sprintf("cond-%d", len(m.conditions)+1)
	}
	if condition.State == "" {
		condition.State = models.ConditionPending
	}
	copy := *condition
	m.conditions[condition.ID] = &copy
	return nil
}

func (m *memConditionStore) GetByID(ctx context.Context, id string) (*models.CoordinatorCondition, error) {
	condition, ok := m.conditions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *condition
	return &copy, nil
}

func (m *memConditionStore) ListByFile(ctx context.Context, fileID string) ([]models.CoordinatorCondition, error) {
	var out []models.CoordinatorCondition
	for _, c := range m.conditions {
		if c.AdmissionFileID == fileID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memConditionStore) UpdateState(ctx context.Context, id string, to models.ConditionState, completionDate *time.Time, notes string) error {
	condition, ok := m.conditions[id]
	if !ok || (condition.State != models.ConditionPending && condition.State != models.ConditionOverdue) {
		return sql.ErrNoRows
	}
	condition.State = to
	condition.CompletionDate = completionDate
	condition.Notes = notes
	return nil
}

func (m *memConditionStore) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	var flagged int64
	for _, c := range m.conditions {
		if c.Overdue(today) {
			c.State = models.ConditionOverdue
			flagged++
		}
	}
	return flagged, nil
}

func (m *memConditionStore) CountPending(ctx context.Context, fileID string) (int, error) {
	count := 0
	for _, c := range m.conditions {
		if c.AdmissionFileID == fileID && c.State == models.ConditionPending {
			count++
		}
	}
	return count, nil
}

func (m *memConditionStore) Summary(ctx context.Context, fileID string) (*models.ConditionSummary, error) {
	summary := &models.ConditionSummary{}
	for _, c := range m.conditions {
		if fileID != "" && c.AdmissionFileID != fileID {
			continue
		}
		summary.Total++
		switch c.State {
		case models.ConditionPending:
			summary.Pending++
		case models.ConditionCompleted:
			summary.Completed++
		case models.ConditionRejected:
			summary.Rejected++
		case models.ConditionOverdue:
			summary.Overdue++
		}
	}
	return summary, nil
}

type stubEscalator struct {
	calls []string
	err   error
}

func (s *stubEscalator) CoordinatorApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	s.calls = append(s.calls, id)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AdmissionFile{ID: id, State: models.StateCoordinatorApproved}, nil
}

type conditionFixture struct {
	svc       *ConditionService
	store     *memConditionStore
	files     *memAdmissionStore
	escalator *stubEscalator
}

func newConditionFixture(t *testing.T, fileState models.AdmissionState) (*conditionFixture, *models.AdmissionFile) {
	t.Helper()
	files := newMemAdmissionStore()
	file := &models.AdmissionFile{
		FileNumber: "ADM-2026-000042",
		State:      fileState,
	}
	require.NoError(t, files.Create(context.Background(), file))

	fx := &conditionFixture{
		store:     newMemConditionStore(),
		files:     files,
		escalator: &stubEscalator{},
	}
	fx.svc = NewConditionService(fx.store, fx.files, &stubAudit{}, zap.NewNop())
	fx.svc.SetEscalator(fx.escalator)
	return fx, file
}

func TestConditionCreateOnlyDuringCoordinatorReview(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateMinistryPending)
	_, err := fx.svc.Create(context.Background(), file.ID, "coord-1", dto.ConditionPayload{SubjectName: "Biology"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCompletingLastConditionAutoAdvancesFile(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, CoordinatorID: "coord-1", SubjectName: "Biology",
	}))

	condition, err := fx.svc.Complete(context.Background(), "cond-1", "coord-1", dto.ResolveConditionRequest{Notes: "passed"})
	require.NoError(t, err)
	assert.Equal(t, models.ConditionCompleted, condition.State)
	require.NotNil(t, condition.CompletionDate)
	require.Len(t, fx.escalator.calls, 1)
	assert.Equal(t, file.ID, fx.escalator.calls[0])
}

func TestCompletingConditionLeavesFileWhileOthersPending(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, CoordinatorID: "coord-1", SubjectName: "Biology",
	}))
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-2", AdmissionFileID: file.ID, CoordinatorID: "coord-1", SubjectName: "Chemistry",
	}))

	_, err := fx.svc.Complete(context.Background(), "cond-1", "coord-1", dto.ResolveConditionRequest{})
	require.NoError(t, err)
	assert.Empty(t, fx.escalator.calls)
}

func TestCompleteFailedEscalationDoesNotFailCondition(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	fx.escalator.err = fmt.Errorf("file state changed")
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, CoordinatorID: "coord-1", SubjectName: "Biology",
	}))

	condition, err := fx.svc.Complete(context.Background(), "cond-1", "coord-1", dto.ResolveConditionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ConditionCompleted, condition.State)
}

func TestResolvedConditionCannotBeResolvedAgain(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, CoordinatorID: "coord-1",
		SubjectName: "Biology", State: models.ConditionCompleted,
	}))

	_, err := fx.svc.Reject(context.Background(), "cond-1", "coord-1", dto.ResolveConditionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestOverdueConditionMustBeResetBeforeResolution(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, CoordinatorID: "coord-1",
		SubjectName: "Biology", State: models.ConditionOverdue,
	}))

	_, err := fx.svc.Complete(context.Background(), "cond-1", "coord-1", dto.ResolveConditionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	reset, err := fx.svc.ResetToPending(context.Background(), "cond-1", "coord-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConditionPending, reset.State)

	condition, err := fx.svc.Complete(context.Background(), "cond-1", "coord-1", dto.ResolveConditionRequest{Notes: "passed late"})
	require.NoError(t, err)
	assert.Equal(t, models.ConditionCompleted, condition.State)
}

func TestResetToPendingRejectsNonOverdue(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, CoordinatorID: "coord-1", SubjectName: "Biology",
	}))

	_, err := fx.svc.ResetToPending(context.Background(), "cond-1", "coord-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestSweepOverdueFlagsOnlyExpiredPending(t *testing.T) {
	fx, file := newConditionFixture(t, models.StateCoordinatorConditional)
	past := time.Now().UTC().Add(-48 * time.Hour)
	future := time.Now().UTC().Add(48 * time.Hour)
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-1", AdmissionFileID: file.ID, SubjectName: "Biology", Deadline: &past,
	}))
	require.NoError(t, fx.store.Create(context.Background(), &models.CoordinatorCondition{
		ID: "cond-2", AdmissionFileID: file.ID, SubjectName: "Chemistry", Deadline: &future,
	}))

	require.NoError(t, fx.svc.SweepOverdue(context.Background()))
	assert.Equal(t, models.ConditionOverdue, fx.store.conditions["cond-1"].State)
	assert.Equal(t, models.ConditionPending, fx.store.conditions["cond-2"].State)
}
