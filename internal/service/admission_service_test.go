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
	"github.com/acmst-college/admission-api/internal/repository"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type memAdmissionStore struct {
	files   map[string]*models.AdmissionFile
	nextSeq int
	raceOn  bool
}

func newMemAdmissionStore() *memAdmissionStore {
	return &memAdmissionStore{files: make(map[string]*models.AdmissionFile)}
}

func (m *memAdmissionStore) Create(ctx context.Context, file *models.AdmissionFile) error {
	if file.ID == "" {
		file.ID = fmt.Sprintf("file-%d", len(m.files)+1)
	}
	if file.State == "" {
		file.State = models.StateNew
	}
	copy := *file
	m.files[file.ID] = &copy
	return nil
}

func (m *memAdmissionStore) GetByID(ctx context.Context, id string) (*models.AdmissionFile, error) {
	file, ok := m.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *file
	return &copy, nil
}

func (m *memAdmissionStore) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionFile, int, error) {
	var out []models.AdmissionFile
	for _, f := range m.files {
		out = append(out, *f)
	}
	return out, len(out), nil
}

func (m *memAdmissionStore) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	for _, f := range m.files {
		if f.NationalID == nationalID && f.State != models.StateCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAdmissionStore) UpdateState(ctx context.Context, params repository.UpdateStateParams) error {
	file, ok := m.files[params.ID]
	if !ok || file.State != params.FromState || m.raceOn {
		return sql.ErrNoRows
	}
	file.State = params.ToState
	if params.FileNumber != nil {
		file.FileNumber = *params.FileNumber
	}
	if params.AcademicLevel != nil {
		file.AcademicLevel = params.AcademicLevel
	}
	if params.MinistryApprovalDate != nil {
		file.MinistryApprovalDate = params.MinistryApprovalDate
		file.MinistryApproverID = params.MinistryApproverID
	}
	if params.HealthCheckDate != nil {
		file.HealthCheckDate = params.HealthCheckDate
		file.HealthApproverID = params.HealthApproverID
	}
	if params.CoordinatorApprovalDate != nil {
		file.CoordinatorApprovalDate = params.CoordinatorApprovalDate
	}
	if params.CoordinatorID != nil {
		file.CoordinatorID = params.CoordinatorID
	}
	if params.ManagerApprovalDate != nil {
		file.ManagerApprovalDate = params.ManagerApprovalDate
		file.ManagerID = params.ManagerID
	}
	return nil
}

func (m *memAdmissionStore) SetStudent(ctx context.Context, fileID, studentID string) error {
	file, ok := m.files[fileID]
	if !ok || file.State != models.StateCompleted || file.StudentID != nil {
		return sql.ErrNoRows
	}
	file.StudentID = &studentID
	return nil
}

func (m *memAdmissionStore) UpdateApplicantData(ctx context.Context, file *models.AdmissionFile) error {
	copy := *file
	m.files[file.ID] = &copy
	return nil
}

func (m *memAdmissionStore) NextFileSequence(ctx context.Context, year int) (int, error) {
	m.nextSeq++
	return m.nextSeq, nil
}

type memApprovalStore struct {
	records []models.ApprovalRecord
	failing bool
}

func (m *memApprovalStore) Create(ctx context.Context, record *models.ApprovalRecord) error {
	if m.failing {
		return fmt.Errorf("approvals table unavailable")
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *memApprovalStore) ListByFile(ctx context.Context, fileID string) ([]models.ApprovalRecord, error) {
	var out []models.ApprovalRecord
	for _, r := range m.records {
		if r.AdmissionFileID == fileID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memGuardianStore struct {
	guardians map[string][]models.Guardian
}

func (m *memGuardianStore) Create(ctx context.Context, guardian *models.Guardian) error {
	if m.guardians == nil {
		m.guardians = make(map[string][]models.Guardian)
	}
	guardian.Active = true
	if len(m.guardians[guardian.AdmissionFileID]) == 0 {
		guardian.IsDefault = true
	}
	m.guardians[guardian.AdmissionFileID] = append(m.guardians[guardian.AdmissionFileID], *guardian)
	return nil
}

func (m *memGuardianStore) ListByFile(ctx context.Context, fileID string) ([]models.Guardian, error) {
	return m.guardians[fileID], nil
}

type memConditionGate struct {
	conditions []models.CoordinatorCondition
}

func (m *memConditionGate) Create(ctx context.Context, condition *models.CoordinatorCondition) error {
	if condition.State == "" {
		condition.State = models.ConditionPending
	}
	m.conditions = append(m.conditions, *condition)
	return nil
}

func (m *memConditionGate) ListByFile(ctx context.Context, fileID string) ([]models.CoordinatorCondition, error) {
	var out []models.CoordinatorCondition
	for _, c := range m.conditions {
		if c.AdmissionFileID == fileID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConditionGate) CountPending(ctx context.Context, fileID string) (int, error) {
	count := 0
	for _, c := range m.conditions {
		if c.AdmissionFileID == fileID && c.State == models.ConditionPending {
			count++
		}
	}
	return count, nil
}

type memHealthReader struct{}

func (memHealthReader) ListByFile(ctx context.Context, fileID string) ([]models.HealthCheck, error) {
	return nil, nil
}

type memProgramReader struct {
	programs map[string]*models.Program
	batches  map[string]*models.Batch
}

func (m *memProgramReader) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	p, ok := m.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *memProgramReader) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return b, nil
}

type memStudentCreator struct {
	students []models.Student
	seq      int
	failing  bool
}

func (m *memStudentCreator) Create(ctx context.Context, student *models.Student) error {
	if m.failing {
		return fmt.Errorf("student table unavailable")
	}
	if student.ID == "" {
		student.ID = fmt.Sprintf("student-%d", len(m.students)+1)
	}
	m.students = append(m.students, *student)
	return nil
}

func (m *memStudentCreator) NextSequence(ctx context.Context, year int, programID, batchID string) (int, error) {
	m.seq++
	return m.seq, nil
}

type admissionFixture struct {
	svc       *AdmissionService
	files     *memAdmissionStore
	approvals *memApprovalStore
	guardians *memGuardianStore
	gate      *memConditionGate
	students  *memStudentCreator
	notify    *stubNotifier
	audit     *stubAudit
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()
	coordinator := "coord-1"
	fx := &admissionFixture{
		files:     newMemAdmissionStore(),
		approvals: &memApprovalStore{},
		guardians: &memGuardianStore{},
		gate:      &memConditionGate{},
		students:  &memStudentCreator{},
		notify:    &stubNotifier{},
		audit:     &stubAudit{},
	}
	programs := &memProgramReader{
		programs: map[string]*models.Program{
			"prog-1": {ID: "prog-1", Name: "Medicine", Code: "MED", CoordinatorID: &coordinator, Active: true},
			"prog-2": {ID: "prog-2", Name: "Pharmacy", Code: "PHA", Active: true},
		},
		batches: map[string]*models.Batch{
			"batch-1": {ID: "batch-1", ProgramID: "prog-1", Code: "B1", AcademicYear: "2026"},
		},
	}
	fx.svc = NewAdmissionService(fx.files, fx.approvals, fx.guardians, fx.gate, memHealthReader{}, programs, fx.students, fx.notify, fx.audit, zap.NewNop())
	return fx
}

func (fx *admissionFixture) seedFile(t *testing.T, state models.AdmissionState) *models.AdmissionFile {
	t.Helper()
	file := &models.AdmissionFile{
		ApplicantName:    "Sara Ali",
		NationalID:       "1234567890",
		Email:            "sara@example.com",
		Phone:            "0912345678",
		Gender:           models.GenderFemale,
		BirthDate:        time.Date(2006, 3, 15, 0, 0, 0, 0, time.UTC),
		Nationality:      "SD",
		ProgramID:        "prog-1",
		BatchID:          "batch-1",
		State:            state,
		SubmissionMethod: models.SubmissionOffice,
	}
	if state != models.StateNew {
		file.FileNumber = "ADM-2026-000099"
	}
	require.NoError(t, fx.files.Create(context.Background(), file))
	require.NoError(t, fx.guardians.Create(context.Background(), &models.Guardian{
		AdmissionFileID: file.ID,
		Name:            "Ali Hassan",
		Relationship:    models.RelationFather,
		Phone:           "0923456789",
		IsDefault:       true,
	}))
	return file
}

func TestCreateRejectsDuplicateNationalID(t *testing.T) {
	fx := newAdmissionFixture(t)
	fx.seedFile(t, models.StateMinistryPending)

	_, err := fx.svc.Create(context.Background(), dto.CreateAdmissionRequest{
		ApplicantName: "Sara Ali",
		NationalID:    "1234567890",
		Email:         "sara@example.com",
		Phone:         "0912345678",
		BirthDate:     time.Date(2006, 3, 15, 0, 0, 0, 0, time.UTC),
		ProgramID:     "prog-1",
		BatchID:       "batch-1",
		Guardians: []dto.GuardianPayload{
			{Name: "Ali Hassan", Relationship: models.RelationFather, Phone: "0923456789", IsDefault: true},
		},
	}, "officer-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitAssignsFileNumberOnce(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateNew)

	result, err := fx.svc.Submit(context.Background(), file.ID, "officer-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateMinistryPending, result.State)
	assert.Regexp(t, `^ADM-\d{4}-\d{6}$`, result.FileNumber)

	approvals, err := fx.approvals.ListByFile(context.Background(), file.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, models.ApprovalMinistry, approvals[0].Type)
	assert.Equal(t, models.DecisionPending, approvals[0].Decision)

	sent := fx.notify.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "admission_submitted", sent[0].TemplateRef)
}

func TestSubmitFailsWithoutGuardian(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := &models.AdmissionFile{
		ApplicantName: "Sara Ali",
		NationalID:    "9876543210",
		Email:         "sara2@example.com",
		Phone:         "0912345678",
		BirthDate:     time.Date(2006, 3, 15, 0, 0, 0, 0, time.UTC),
		ProgramID:     "prog-1",
		BatchID:       "batch-1",
		State:         models.StateNew,
	}
	require.NoError(t, fx.files.Create(context.Background(), file))

	_, err := fx.svc.Submit(context.Background(), file.ID, "officer-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIncompleteData.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "guardian")
}

func TestLostApprovalRecordEscalatesToAudit(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateMinistryPending)
	fx.approvals.failing = true

	result, err := fx.svc.MinistryApprove(context.Background(), file.ID, "ministry-1", dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StateMinistryApproved, result.State)

	var escalated []AuditEntry
	for _, entry := range fx.audit.recorded() {
		if entry.ModelName == "approval_record" {
			escalated = append(escalated, entry)
		}
	}
	require.Len(t, escalated, 1)
	assert.Equal(t, models.SeverityHigh, escalated[0].Severity)
	assert.Equal(t, file.ID, escalated[0].RecordID)
}

func TestTransitionLostRaceSurfacesInvalidTransition(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateMinistryPending)
	fx.files.raceOn = true

	_, err := fx.svc.MinistryApprove(context.Background(), file.ID, "ministry-1", dto.DecisionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestHealthApproveAdvancesStraightToCoordinatorReview(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateHealthRequired)

	result, err := fx.svc.HealthApprove(context.Background(), file.ID, "examiner-1", dto.DecisionRequest{Comments: "fit"})
	require.NoError(t, err)
	assert.Equal(t, models.StateCoordinatorReview, result.State)
	require.NotNil(t, result.CoordinatorID)
	assert.Equal(t, "coord-1", *result.CoordinatorID)
	require.NotNil(t, result.HealthApproverID)
	assert.Equal(t, "examiner-1", *result.HealthApproverID)
}

func TestCoordinatorConditionalRequiresConditionsAndLevel(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateCoordinatorReview)

	_, err := fx.svc.CoordinatorConditional(context.Background(), file.ID, "coord-1", dto.ConditionalApprovalRequest{Level: models.LevelTwo})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	result, err := fx.svc.CoordinatorConditional(context.Background(), file.ID, "coord-1", dto.ConditionalApprovalRequest{
		Level: models.LevelTwo,
		Conditions: []dto.ConditionPayload{
			{SubjectName: "Biology", SubjectCode: "BIO101"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateCoordinatorConditional, result.State)
	require.NotNil(t, result.AcademicLevel)
	assert.Equal(t, models.LevelTwo, *result.AcademicLevel)

	pending, err := fx.gate.CountPending(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestCoordinatorApproveBlockedWhileConditionsPending(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.gate.Create(context.Background(), &models.CoordinatorCondition{
		AdmissionFileID: file.ID,
		CoordinatorID:   "coord-1",
		SubjectName:     "Biology",
	}))

	_, err := fx.svc.CoordinatorApprove(context.Background(), file.ID, "coord-1", dto.DecisionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	fx.gate.conditions[0].State = models.ConditionCompleted
	result, err := fx.svc.CoordinatorApprove(context.Background(), file.ID, "coord-1", dto.DecisionRequest{Comments: "all conditions satisfied"})
	require.NoError(t, err)
	assert.Equal(t, models.StateCoordinatorApproved, result.State)
}

func TestOverdueConditionDoesNotBlockCoordinatorApproval(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateCoordinatorConditional)
	require.NoError(t, fx.gate.Create(context.Background(), &models.CoordinatorCondition{
		AdmissionFileID: file.ID,
		CoordinatorID:   "coord-1",
		SubjectName:     "Chemistry",
		State:           models.ConditionOverdue,
	}))

	result, err := fx.svc.CoordinatorApprove(context.Background(), file.ID, "coord-1", dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StateCoordinatorApproved, result.State)
}

func TestManagerApproveAutoCompletesAndCreatesStudent(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateManagerReview)

	result, err := fx.svc.ManagerApprove(context.Background(), file.ID, "manager-1", dto.DecisionRequest{Comments: "approved"})
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	require.NotNil(t, result.StudentID)

	require.Len(t, fx.students.students, 1)
	assert.Regexp(t, `^\d{4}-MED-B1-\d{4}$`, fx.students.students[0].StudentNumber)
	assert.Equal(t, file.ID, fx.students.students[0].AdmissionFileID)
}

func TestCompleteSurvivesStudentCreationFailure(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateManagerApproved)
	fx.students.failing = true

	result, err := fx.svc.Complete(context.Background(), file.ID, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	assert.Nil(t, result.StudentID)
}

func TestRejectRequiresReason(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateMinistryPending)

	_, err := fx.svc.MinistryReject(context.Background(), file.ID, "ministry-1", dto.DecisionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	result, err := fx.svc.MinistryReject(context.Background(), file.ID, "ministry-1", dto.DecisionRequest{Comments: "missing certificate"})
	require.NoError(t, err)
	assert.Equal(t, models.StateMinistryRejected, result.State)
}

func TestCancelAllowedFromAnyNonTerminalState(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateCoordinatorReview)

	result, err := fx.svc.Cancel(context.Background(), file.ID, "officer-1", dto.CancelRequest{Reason: "applicant withdrew"})
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, result.State)
}

func TestCancelRejectedForCompletedFile(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateCompleted)

	_, err := fx.svc.Cancel(context.Background(), file.ID, "officer-1", dto.CancelRequest{Reason: "late withdrawal"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestRevalidateReportsViolations(t *testing.T) {
	fx := newAdmissionFixture(t)
	file := fx.seedFile(t, models.StateMinistryPending)
	stored := fx.files.files[file.ID]
	stored.Email = "not-an-email"
	stored.Phone = "123"

	result, err := fx.svc.Revalidate(context.Background(), file.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Violations, 2)
}
