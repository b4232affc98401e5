package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/repository"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type memWorkflowStore struct {
	workflows map[string]*models.Workflow
	rules     map[string]*models.WorkflowRule
}

func newMemWorkflowStore() *memWorkflowStore {
	return &memWorkflowStore{
		workflows: make(map[string]*models.Workflow),
		rules:     make(map[string]*models.WorkflowRule),
	}
}

func (m *memWorkflowStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = fmt.Sprintf("wf-%d", len(m.workflows)+1)
	}
	copy := *workflow
	m.workflows[workflow.ID] = &copy
	return nil
}

func (m *memWorkflowStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, ok := m.workflows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *workflow
	return &copy, nil
}

func (m *memWorkflowStore) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	var out []models.Workflow
	for _, w := range m.workflows {
		out = append(out, *w)
	}
	return out, nil
}

func (m *memWorkflowStore) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	workflow, ok := m.workflows[id]
	if !ok {
		return sql.ErrNoRows
	}
	workflow.Active = active
	return nil
}

func (m *memWorkflowStore) CreateRule(ctx context.Context, rule *models.WorkflowRule) error {
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule-%d", len(m.rules)+1)
	}
	copy := *rule
	m.rules[rule.ID] = &copy
	return nil
}

func (m *memWorkflowStore) GetRule(ctx context.Context, id string) (*models.WorkflowRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *rule
	return &copy, nil
}

func (m *memWorkflowStore) ListRules(ctx context.Context, workflowID string) ([]models.WorkflowRule, error) {
	var out []models.WorkflowRule
	for _, r := range m.rules {
		if r.WorkflowID == workflowID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *memWorkflowStore) ListActiveRulesForState(ctx context.Context, state models.AdmissionState) ([]models.WorkflowRule, error) {
	var out []models.WorkflowRule
	for _, r := range m.rules {
		workflow, ok := m.workflows[r.WorkflowID]
		if !ok || !workflow.Active || !r.Active || r.FromState != state {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *memWorkflowStore) ListActiveTimeoutRules(ctx context.Context) ([]models.WorkflowRule, error) {
	var out []models.WorkflowRule
	for _, r := range m.rules {
		workflow, ok := m.workflows[r.WorkflowID]
		if !ok || !workflow.Active || !r.Active || r.ActionType != models.ActionTimeout {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *memWorkflowStore) SetRuleActive(ctx context.Context, id string, active bool) error {
	rule, ok := m.rules[id]
	if !ok {
		return sql.ErrNoRows
	}
	rule.Active = active
	return nil
}

func (m *memWorkflowStore) DeleteRule(ctx context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rules, id)
	return nil
}

type memRuleTarget struct {
	files  map[string]*models.AdmissionFile
	raceOn bool
}

func newMemRuleTarget() *memRuleTarget {
	return &memRuleTarget{files: make(map[string]*models.AdmissionFile)}
}

func (m *memRuleTarget) add(file *models.AdmissionFile) *models.AdmissionFile {
	if file.ID == "" {
		file.ID = fmt.Sprintf("file-%d", len(m.files)+1)
	}
	copy := *file
	m.files[file.ID] = &copy
	return file
}

func (m *memRuleTarget) GetByID(ctx context.Context, id string) (*models.AdmissionFile, error) {
	file, ok := m.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *file
	return &copy, nil
}

func (m *memRuleTarget) UpdateState(ctx context.Context, params repository.UpdateStateParams) error {
	if m.raceOn {
		return sql.ErrNoRows
	}
	file, ok := m.files[params.ID]
	if !ok || file.State != params.FromState {
		return sql.ErrNoRows
	}
	file.State = params.ToState
	file.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memRuleTarget) ListByStateOlderThan(ctx context.Context, state models.AdmissionState, cutoff time.Time, limit int) ([]models.AdmissionFile, error) {
	var out []models.AdmissionFile
	for _, f := range m.files {
		if f.State == state && f.UpdatedAt.Before(cutoff) {
			out = append(out, *f)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type workflowFixture struct {
	svc    *WorkflowService
	store  *memWorkflowStore
	files  *memRuleTarget
	notify *stubNotifier
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	fx := &workflowFixture{
		store:  newMemWorkflowStore(),
		files:  newMemRuleTarget(),
		notify: &stubNotifier{},
	}
	fx.svc = NewWorkflowService(fx.store, fx.files, fx.notify, &stubAudit{}, zap.NewNop(), 0)
	return fx
}

func (fx *workflowFixture) seedWorkflow(t *testing.T) *models.Workflow {
	t.Helper()
	workflow, err := fx.svc.CreateWorkflow(context.Background(), dto.CreateWorkflowRequest{
		Name: "standard admissions", AutoTransitions: true, NotificationsEnabled: true,
	}, "admin")
	require.NoError(t, err)
	return workflow
}

func TestAddRuleRejectsInvalidDefinition(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)

	cases := []dto.CreateRuleRequest{
		{Name: "same state", FromState: models.StateMinistryPending, ToState: models.StateMinistryPending,
			ActionType: models.ActionTransition, ConditionType: models.ConditionAlways},
		{Name: "bad state", FromState: "limbo", ToState: models.StateCancelled,
			ActionType: models.ActionTransition, ConditionType: models.ConditionAlways},
		{Name: "timeout without window", FromState: models.StateMinistryPending, ToState: models.StateCancelled,
			ActionType: models.ActionTimeout, ConditionType: models.ConditionTimeBased},
		{Name: "reopen completed", FromState: models.StateCompleted, ToState: models.StateManagerReview,
			ActionType: models.ActionTransition, ConditionType: models.ConditionAlways},
	}
	for _, req := range cases {
		_, err := fx.svc.AddRule(context.Background(), workflow.ID, req, "admin")
		require.Error(t, err, req.Name)
		assert.Equal(t, appErrors.ErrRuleValidationFailed.Code, appErrors.FromError(err).Code, req.Name)
	}
}

func TestExecuteAppliesOneTransitionPerRun(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{State: models.StateMinistryPending, FileNumber: "ADM-2026-000010"})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "advance to health", FromState: models.StateMinistryPending, ToState: models.StateHealthRequired,
		ActionType: models.ActionTransition, ConditionType: models.ConditionAlways, Priority: 1,
	}, "admin")
	require.NoError(t, err)
	_, err = fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "stale cancel", FromState: models.StateMinistryPending, ToState: models.StateCancelled,
		ActionType: models.ActionTransition, ConditionType: models.ConditionAlways, Priority: 2,
	}, "admin")
	require.NoError(t, err)

	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.True(t, result.Transitioned)
	assert.Equal(t, models.StateHealthRequired, result.ToState)
	assert.Empty(t, result.Errors)
	assert.Equal(t, models.StateHealthRequired, fx.files.files[file.ID].State)
}

func TestExecuteNotificationRule(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{State: models.StateCoordinatorReview, FileNumber: "ADM-2026-000011"})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "nudge coordinator", FromState: models.StateCoordinatorReview, ToState: models.StateCoordinatorApproved,
		ActionType: models.ActionNotification, ConditionType: models.ConditionAlways,
		NotificationTemplate: "admission_timeout_reminder",
	}, "admin")
	require.NoError(t, err)

	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.False(t, result.Transitioned)
	assert.Equal(t, 1, result.Notifications)
	require.Len(t, fx.notify.notifications(), 1)
	assert.Equal(t, "admission_timeout_reminder", fx.notify.notifications()[0].TemplateRef)
	assert.Equal(t, models.StateCoordinatorReview, fx.files.files[file.ID].State)
}

func TestExecuteValidationGatePassesWhenConditionHolds(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{State: models.StateMinistryPending, FileNumber: "ADM-2026-000012"})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "ministry response present", FromState: models.StateMinistryPending, ToState: models.StateMinistryApproved,
		ActionType: models.ActionValidation, ConditionType: models.ConditionAlways, Priority: 1,
	}, "admin")
	require.NoError(t, err)
	_, err = fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "advance to health", FromState: models.StateMinistryPending, ToState: models.StateHealthRequired,
		ActionType: models.ActionTransition, ConditionType: models.ConditionAlways, Priority: 2,
	}, "admin")
	require.NoError(t, err)

	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.RulesMatched)
	assert.True(t, result.Transitioned)
	assert.Equal(t, models.StateHealthRequired, fx.files.files[file.ID].State)
}

func TestExecuteValidationGateBlocksUnmetCondition(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{
		State: models.StateMinistryPending, FileNumber: "ADM-2026-000018",
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "response window elapsed", FromState: models.StateMinistryPending, ToState: models.StateMinistryApproved,
		ActionType: models.ActionValidation, ConditionType: models.ConditionTimeBased, TimeoutHours: 24,
		Priority: 1, ErrorMessage: "ministry response window has not elapsed",
	}, "admin")
	require.NoError(t, err)
	_, err = fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "advance to health", FromState: models.StateMinistryPending, ToState: models.StateHealthRequired,
		ActionType: models.ActionTransition, ConditionType: models.ConditionAlways, Priority: 2,
	}, "admin")
	require.NoError(t, err)

	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRuleValidationFailed.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "ministry response window has not elapsed")
	require.Len(t, result.Errors, 1)
	// The gate fires before any action rule; the file stays put.
	assert.False(t, result.Transitioned)
	assert.Equal(t, models.StateMinistryPending, fx.files.files[file.ID].State)
}

func TestExecuteTimeBasedRuleRespectsWindow(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{
		State: models.StateMinistryPending, FileNumber: "ADM-2026-000013",
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "escalate stale file", FromState: models.StateMinistryPending, ToState: models.StateCancelled,
		ActionType: models.ActionTransition, ConditionType: models.ConditionTimeBased, TimeoutHours: 24,
	}, "admin")
	require.NoError(t, err)

	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Equal(t, 0, result.RulesMatched)
	assert.Equal(t, models.StateMinistryPending, fx.files.files[file.ID].State)

	fx.files.files[file.ID].UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	result, err = fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.True(t, result.Transitioned)
	assert.Equal(t, models.StateCancelled, fx.files.files[file.ID].State)
}

func TestExecuteLostRaceSurfacesInResult(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{State: models.StateMinistryPending, FileNumber: "ADM-2026-000014"})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "advance to health", FromState: models.StateMinistryPending, ToState: models.StateHealthRequired,
		ActionType: models.ActionTransition, ConditionType: models.ConditionAlways,
	}, "admin")
	require.NoError(t, err)

	fx.files.raceOn = true
	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.False(t, result.Transitioned)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "state changed")
}

func TestProcessTimeoutsTransitionsStaleFiles(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	stale := fx.files.add(&models.AdmissionFile{
		State: models.StateMinistryPending, FileNumber: "ADM-2026-000015",
		UpdatedAt: time.Now().UTC().Add(-72 * time.Hour),
	})
	fresh := fx.files.add(&models.AdmissionFile{
		State: models.StateMinistryPending, FileNumber: "ADM-2026-000016",
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	})

	_, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "cancel abandoned applications", FromState: models.StateMinistryPending, ToState: models.StateCancelled,
		ActionType: models.ActionTimeout, ConditionType: models.ConditionTimeBased, TimeoutHours: 48,
		SendNotification: true, NotificationTemplate: "admission_cancelled",
	}, "admin")
	require.NoError(t, err)

	result, err := fx.svc.ProcessTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RulesChecked)
	assert.Equal(t, 1, result.FilesMatched)
	assert.Equal(t, 1, result.Transitioned)
	assert.Equal(t, 1, result.Notifications)
	assert.Equal(t, models.StateCancelled, fx.files.files[stale.ID].State)
	assert.Equal(t, models.StateMinistryPending, fx.files.files[fresh.ID].State)
}

func TestSetRuleActiveDisablesEvaluation(t *testing.T) {
	fx := newWorkflowFixture(t)
	workflow := fx.seedWorkflow(t)
	file := fx.files.add(&models.AdmissionFile{State: models.StateMinistryPending, FileNumber: "ADM-2026-000017"})

	rule, err := fx.svc.AddRule(context.Background(), workflow.ID, dto.CreateRuleRequest{
		Name: "advance to health", FromState: models.StateMinistryPending, ToState: models.StateHealthRequired,
		ActionType: models.ActionTransition, ConditionType: models.ConditionAlways,
	}, "admin")
	require.NoError(t, err)
	require.NoError(t, fx.svc.SetRuleActive(context.Background(), rule.ID, false, "admin"))

	result, err := fx.svc.Execute(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RulesEvaluated)
	assert.Equal(t, models.StateMinistryPending, fx.files.files[file.ID].State)
}
