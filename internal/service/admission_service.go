package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/repository"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/mailer"
)

type admissionStore interface {
	Create(ctx context.Context, file *models.AdmissionFile) error
	GetByID(ctx context.Context, id string) (*models.AdmissionFile, error)
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionFile, int, error)
	ExistsByNationalID(ctx context.Context, nationalID string) (bool, error)
	UpdateState(ctx context.Context, params repository.UpdateStateParams) error
	SetStudent(ctx context.Context, fileID, studentID string) error
	UpdateApplicantData(ctx context.Context, file *models.AdmissionFile) error
	NextFileSequence(ctx context.Context, year int) (int, error)
}

type approvalStore interface {
	Create(ctx context.Context, record *models.ApprovalRecord) error
	ListByFile(ctx context.Context, fileID string) ([]models.ApprovalRecord, error)
}

type guardianStore interface {
	Create(ctx context.Context, guardian *models.Guardian) error
	ListByFile(ctx context.Context, fileID string) ([]models.Guardian, error)
}

type conditionGate interface {
	ListByFile(ctx context.Context, fileID string) ([]models.CoordinatorCondition, error)
	CountPending(ctx context.Context, fileID string) (int, error)
	Create(ctx context.Context, condition *models.CoordinatorCondition) error
}

type healthChecksReader interface {
	ListByFile(ctx context.Context, fileID string) ([]models.HealthCheck, error)
}

type programReader interface {
	GetProgram(ctx context.Context, id string) (*models.Program, error)
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
}

type studentCreator interface {
	Create(ctx context.Context, student *models.Student) error
	NextSequence(ctx context.Context, year int, programID, batchID string) (int, error)
}

type notifier interface {
	Notify(ctx context.Context, notification Notification)
}

// AdmissionService is the admission file state machine. Every transition
// validates the current state, writes the new state with a guarded update,
// appends an approval record, records the audit trail, and notifies the
// applicant best-effort.
type AdmissionService struct {
	files      admissionStore
	approvals  approvalStore
	guardians  guardianStore
	conditions conditionGate
	health     healthChecksReader
	programs   programReader
	students   studentCreator
	notify     notifier
	audit      auditRecorder
	logger     *zap.Logger

	minAge int
	maxAge int
}

// AdmissionServiceOption configures the service.
type AdmissionServiceOption func(*AdmissionService)

// WithAgeLimits overrides the applicant age window.
func WithAgeLimits(minAge, maxAge int) AdmissionServiceOption {
	return func(s *AdmissionService) {
		if minAge > 0 {
			s.minAge = minAge
		}
		if maxAge > 0 {
			s.maxAge = maxAge
		}
	}
}

// NewAdmissionService constructs the service.
func NewAdmissionService(
	files admissionStore,
	approvals approvalStore,
	guardians guardianStore,
	conditions conditionGate,
	health healthChecksReader,
	programs programReader,
	students studentCreator,
	notify notifier,
	audit auditRecorder,
	logger *zap.Logger,
	opts ...AdmissionServiceOption,
) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AdmissionService{
		files:      files,
		approvals:  approvals,
		guardians:  guardians,
		conditions: conditions,
		health:     health,
		programs:   programs,
		students:   students,
		notify:     notify,
		audit:      audit,
		logger:     logger,
		minAge:     15,
		maxAge:     45,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create registers a new application in state "new".
func (s *AdmissionService) Create(ctx context.Context, req dto.CreateAdmissionRequest, userID string) (*models.AdmissionFile, error) {
	file := &models.AdmissionFile{
		ApplicantName:    strings.TrimSpace(req.ApplicantName),
		NationalID:       strings.TrimSpace(req.NationalID),
		Email:            strings.TrimSpace(req.Email),
		Phone:            strings.TrimSpace(req.Phone),
		Gender:           req.Gender,
		BirthDate:        req.BirthDate,
		Nationality:      req.Nationality,
		Address:          req.Address,
		EmergencyContact: req.EmergencyContact,
		EmergencyPhone:   req.EmergencyPhone,
		ProgramID:        req.ProgramID,
		BatchID:          req.BatchID,
		SubmissionMethod: req.SubmissionMethod,
	}
	if file.SubmissionMethod == "" {
		file.SubmissionMethod = models.SubmissionOffice
	}
	if violations := s.validateApplicant(file, req.Guardians); len(violations) > 0 {
		return nil, incompleteData(violations)
	}
	if _, err := s.programs.GetProgram(ctx, file.ProgramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown program")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if _, err := s.programs.GetBatch(ctx, file.BatchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	exists, err := s.files.ExistsByNationalID(ctx, file.NationalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check national id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active application already exists for this national id")
	}

	if err := s.files.Create(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admission file")
	}
	for _, g := range req.Guardians {
		guardian := &models.Guardian{
			AdmissionFileID: file.ID,
			Name:            strings.TrimSpace(g.Name),
			Relationship:    g.Relationship,
			Phone:           strings.TrimSpace(g.Phone),
			Email:           strings.TrimSpace(g.Email),
			IsDefault:       g.IsDefault,
		}
		if err := s.guardians.Create(ctx, guardian); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create guardian")
		}
	}

	s.audit.Record(ctx, AuditEntry{
		ModelName:   "admission_file",
		RecordID:    file.ID,
		RecordName:  file.ApplicantName,
		UserID:      optionalID(userID),
		Action:      models.AuditActionCreate,
		Description: "admission file created",
		NewValues:   file,
	})
	return file, nil
}

// Get returns one file.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.AdmissionFile, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission file")
	}
	return file, nil
}

// Detail returns a file with its owned collections.
func (s *AdmissionService) Detail(ctx context.Context, id string) (*models.AdmissionDetail, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.AdmissionDetail{File: *file}
	if detail.Guardians, err = s.guardians.ListByFile(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardians")
	}
	if detail.HealthChecks, err = s.health.ListByFile(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load health checks")
	}
	if detail.Conditions, err = s.conditions.ListByFile(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conditions")
	}
	if detail.Approvals, err = s.approvals.ListByFile(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	return detail, nil
}

// Approvals returns the decision history of one file in chronological order.
func (s *AdmissionService) Approvals(ctx context.Context, id string) ([]models.ApprovalRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.approvals.ListByFile(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	return records, nil
}

// List returns files matching the query plus pagination metadata.
func (s *AdmissionService) List(ctx context.Context, query dto.AdmissionQuery) ([]models.AdmissionFile, *models.Pagination, error) {
	filter := models.AdmissionFilter{
		States:        query.States,
		ProgramID:     query.ProgramID,
		BatchID:       query.BatchID,
		CoordinatorID: query.CoordinatorID,
		Search:        query.Search,
		Page:          query.Page,
		PageSize:      query.PageSize,
	}
	files, total, err := s.files.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admission files")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return files, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update corrects applicant data. Only legal before ministry review begins.
func (s *AdmissionService) Update(ctx context.Context, id string, req dto.UpdateAdmissionRequest, userID string) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateNew && file.State != models.StateMinistryPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "applicant data can only be edited before ministry review")
	}
	old := *file

	file.ApplicantName = strings.TrimSpace(req.ApplicantName)
	file.NationalID = strings.TrimSpace(req.NationalID)
	file.Email = strings.TrimSpace(req.Email)
	file.Phone = strings.TrimSpace(req.Phone)
	file.Gender = req.Gender
	file.BirthDate = req.BirthDate
	file.Nationality = req.Nationality
	file.Address = req.Address
	file.EmergencyContact = req.EmergencyContact
	file.EmergencyPhone = req.EmergencyPhone
	file.ProgramID = req.ProgramID
	file.BatchID = req.BatchID

	if violations := s.validateApplicant(file, nil); len(violations) > 0 {
		return nil, incompleteData(violations)
	}
	if err := s.files.UpdateApplicantData(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admission file")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "admission_file",
		RecordID:    file.ID,
		RecordName:  file.ApplicantName,
		UserID:      optionalID(userID),
		Action:      models.AuditActionWrite,
		Description: "applicant data updated",
		OldValues:   &old,
		NewValues:   file,
	})
	return file, nil
}

// Submit moves new → ministry_pending and assigns the immutable file number.
func (s *AdmissionService) Submit(ctx context.Context, id, userID string) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateNew {
		return nil, transitionError(file.State, models.StateMinistryPending)
	}
	if err := s.revalidate(ctx, file); err != nil {
		return nil, err
	}

	fileNumber := file.FileNumber
	params := repository.UpdateStateParams{
		ID:        file.ID,
		FromState: models.StateNew,
		ToState:   models.StateMinistryPending,
	}
	if fileNumber == "" {
		year := time.Now().UTC().Year()
		seq, err := s.files.NextFileSequence(ctx, year)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign file number")
		}
		fileNumber = fmt.Sprintf("ADM-%d-%06d", year, seq)
		params.FileNumber = &fileNumber
	}
	if err := s.transition(ctx, file, params); err != nil {
		return nil, err
	}
	file.FileNumber = fileNumber

	s.appendApproval(ctx, file.ID, userID, models.ApprovalMinistry, models.DecisionPending, "submitted for ministry review")
	s.finishTransition(ctx, file, models.StateNew, userID, models.AuditActionWorkflow, "submitted for ministry review", "admission_submitted", models.PriorityMedium)
	return file, nil
}

// MinistryApprove moves ministry_pending → ministry_approved. The full
// applicant record is revalidated first.
func (s *AdmissionService) MinistryApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateMinistryPending {
		return nil, transitionError(file.State, models.StateMinistryApproved)
	}
	if err := s.revalidate(ctx, file); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	approver := userID
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:                   file.ID,
		FromState:            models.StateMinistryPending,
		ToState:              models.StateMinistryApproved,
		MinistryApprovalDate: &now,
		MinistryApproverID:   &approver,
	}); err != nil {
		return nil, err
	}
	file.MinistryApprovalDate = &now
	file.MinistryApproverID = &approver

	s.appendApproval(ctx, file.ID, userID, models.ApprovalMinistry, models.DecisionApproved, req.Comments)
	s.finishTransition(ctx, file, models.StateMinistryPending, userID, models.AuditActionApproval, "ministry approval granted", "admission_ministry_approved", models.PriorityMedium)
	return file, nil
}

// MinistryReject moves ministry_pending → ministry_rejected.
func (s *AdmissionService) MinistryReject(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	return s.reject(ctx, id, userID, req, models.StateMinistryPending, models.StateMinistryRejected, models.ApprovalMinistry)
}

// DispatchToHealth moves ministry_approved → health_required.
func (s *AdmissionService) DispatchToHealth(ctx context.Context, id, userID string) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateMinistryApproved {
		return nil, transitionError(file.State, models.StateHealthRequired)
	}
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:        file.ID,
		FromState: models.StateMinistryApproved,
		ToState:   models.StateHealthRequired,
	}); err != nil {
		return nil, err
	}
	s.appendApproval(ctx, file.ID, userID, models.ApprovalHealth, models.DecisionPending, "dispatched for medical examination")
	s.finishTransition(ctx, file, models.StateMinistryApproved, userID, models.AuditActionWorkflow, "dispatched to health check", "", "")
	return file, nil
}

// HealthApprove records a health approval. The approval cascade skips the
// health_approved resting state and advances straight to coordinator_review,
// auto-assigning the coordinator configured on the program.
func (s *AdmissionService) HealthApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateHealthRequired {
		return nil, transitionError(file.State, models.StateCoordinatorReview)
	}
	now := time.Now().UTC()
	approver := userID
	params := repository.UpdateStateParams{
		ID:               file.ID,
		FromState:        models.StateHealthRequired,
		ToState:          models.StateCoordinatorReview,
		HealthCheckDate:  &now,
		HealthApproverID: &approver,
	}

	coordinatorID := s.programCoordinator(ctx, file.ProgramID)
	if coordinatorID != nil {
		params.CoordinatorID = coordinatorID
	}
	if err := s.transition(ctx, file, params); err != nil {
		return nil, err
	}
	file.HealthCheckDate = &now
	file.HealthApproverID = &approver
	file.CoordinatorID = coordinatorID

	s.appendApproval(ctx, file.ID, userID, models.ApprovalHealth, models.DecisionApproved, req.Comments)
	s.finishTransition(ctx, file, models.StateHealthRequired, userID, models.AuditActionApproval, "health check approved", "admission_health_approved", models.PriorityMedium)
	if coordinatorID == nil {
		s.logger.Sugar().Warnw("no coordinator configured for program, manual review assignment required",
			"file_id", file.ID, "program_id", file.ProgramID)
		s.audit.Record(ctx, AuditEntry{
			ModelName:   "admission_file",
			RecordID:    file.ID,
			RecordName:  file.FileNumber,
			Action:      models.AuditActionWorkflow,
			Description: "coordinator review task created without assignee",
			Severity:    models.SeverityMedium,
		})
	}
	return file, nil
}

// HealthReject moves health_required → health_rejected.
func (s *AdmissionService) HealthReject(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	return s.reject(ctx, id, userID, req, models.StateHealthRequired, models.StateHealthRejected, models.ApprovalHealth)
}

// ReenterCoordinatorReview moves health_approved → coordinator_review. This
// is the explicit re-entry path for files resting in health_approved.
func (s *AdmissionService) ReenterCoordinatorReview(ctx context.Context, id, userID string) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateHealthApproved {
		return nil, transitionError(file.State, models.StateCoordinatorReview)
	}
	params := repository.UpdateStateParams{
		ID:        file.ID,
		FromState: models.StateHealthApproved,
		ToState:   models.StateCoordinatorReview,
	}
	if coordinatorID := s.programCoordinator(ctx, file.ProgramID); coordinatorID != nil {
		params.CoordinatorID = coordinatorID
		file.CoordinatorID = coordinatorID
	}
	if err := s.transition(ctx, file, params); err != nil {
		return nil, err
	}
	s.finishTransition(ctx, file, models.StateHealthApproved, userID, models.AuditActionWorkflow, "re-entered coordinator review", "", "")
	return file, nil
}

// CoordinatorApprove moves coordinator_review → coordinator_approved, or
// coordinator_conditional → coordinator_approved once no condition is
// pending (the auto-advance path after the last condition completes).
func (s *AdmissionService) CoordinatorApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := file.State
	switch from {
	case models.StateCoordinatorReview:
	case models.StateCoordinatorConditional:
		pending, err := s.conditions.CountPending(ctx, file.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conditions")
		}
		if pending > 0 {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "conditions are still pending")
		}
	default:
		return nil, transitionError(from, models.StateCoordinatorApproved)
	}

	now := time.Now().UTC()
	approver := userID
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:                      file.ID,
		FromState:               from,
		ToState:                 models.StateCoordinatorApproved,
		CoordinatorApprovalDate: &now,
		CoordinatorID:           &approver,
	}); err != nil {
		return nil, err
	}
	file.CoordinatorApprovalDate = &now
	file.CoordinatorID = &approver

	s.appendApproval(ctx, file.ID, userID, models.ApprovalCoordinator, models.DecisionApproved, req.Comments)
	s.finishTransition(ctx, file, from, userID, models.AuditActionApproval, "coordinator approval granted", "", "")
	return file, nil
}

// CoordinatorReject moves coordinator_review → coordinator_rejected.
func (s *AdmissionService) CoordinatorReject(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	return s.reject(ctx, id, userID, req, models.StateCoordinatorReview, models.StateCoordinatorRejected, models.ApprovalCoordinator)
}

// CoordinatorConditional moves coordinator_review → coordinator_conditional,
// creating the academic conditions in the same call. At least one condition
// is required.
func (s *AdmissionService) CoordinatorConditional(ctx context.Context, id, userID string, req dto.ConditionalApprovalRequest) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateCoordinatorReview {
		return nil, transitionError(file.State, models.StateCoordinatorConditional)
	}
	if len(req.Conditions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "conditional approval requires at least one condition")
	}
	if req.Level != models.LevelTwo && req.Level != models.LevelThree {
		return nil, appErrors.Clone(appErrors.ErrValidation, "conditional approval requires a target academic level")
	}

	now := time.Now().UTC()
	approver := userID
	level := req.Level
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:                      file.ID,
		FromState:               models.StateCoordinatorReview,
		ToState:                 models.StateCoordinatorConditional,
		CoordinatorApprovalDate: &now,
		CoordinatorID:           &approver,
		AcademicLevel:           &level,
	}); err != nil {
		return nil, err
	}
	file.CoordinatorApprovalDate = &now
	file.CoordinatorID = &approver
	file.AcademicLevel = &level

	for _, c := range req.Conditions {
		condition := &models.CoordinatorCondition{
			AdmissionFileID: file.ID,
			CoordinatorID:   userID,
			SubjectName:     strings.TrimSpace(c.SubjectName),
			SubjectCode:     strings.TrimSpace(c.SubjectCode),
			Level:           c.Level,
			Description:     c.Description,
			Deadline:        c.Deadline,
		}
		if condition.Level == "" {
			condition.Level = req.Level
		}
		if err := s.conditions.Create(ctx, condition); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create condition")
		}
	}

	s.appendApproval(ctx, file.ID, userID, models.ApprovalCoordinator, models.DecisionConditional, req.Comments)
	s.finishTransition(ctx, file, models.StateCoordinatorReview, userID, models.AuditActionApproval, "conditional coordinator approval", "admission_conditional", models.PriorityHigh)
	return file, nil
}

// EscalateToManager moves coordinator_approved → manager_review.
func (s *AdmissionService) EscalateToManager(ctx context.Context, id, userID string) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateCoordinatorApproved {
		return nil, transitionError(file.State, models.StateManagerReview)
	}
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:        file.ID,
		FromState: models.StateCoordinatorApproved,
		ToState:   models.StateManagerReview,
	}); err != nil {
		return nil, err
	}
	s.appendApproval(ctx, file.ID, userID, models.ApprovalManager, models.DecisionPending, "escalated for manager review")
	s.finishTransition(ctx, file, models.StateCoordinatorApproved, userID, models.AuditActionWorkflow, "escalated to manager review", "", "")
	return file, nil
}

// ManagerApprove moves manager_review → manager_approved and immediately
// attempts completion. manager_approved is a transient state: the file only
// rests there when completion revalidation fails, and Complete can be
// re-invoked once the data is fixed.
func (s *AdmissionService) ManagerApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateManagerReview {
		return nil, transitionError(file.State, models.StateManagerApproved)
	}
	now := time.Now().UTC()
	approver := userID
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:                  file.ID,
		FromState:           models.StateManagerReview,
		ToState:             models.StateManagerApproved,
		ManagerApprovalDate: &now,
		ManagerID:           &approver,
	}); err != nil {
		return nil, err
	}
	file.ManagerApprovalDate = &now
	file.ManagerID = &approver

	s.appendApproval(ctx, file.ID, userID, models.ApprovalManager, models.DecisionApproved, req.Comments)
	s.finishTransition(ctx, file, models.StateManagerReview, userID, models.AuditActionApproval, "manager approval granted", "", "")

	return s.Complete(ctx, id, userID)
}

// ManagerReject moves manager_review → manager_rejected.
func (s *AdmissionService) ManagerReject(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error) {
	return s.reject(ctx, id, userID, req, models.StateManagerReview, models.StateManagerRejected, models.ApprovalManager)
}

// Complete moves manager_approved → completed and creates the student
// record. Fails with IncompleteData when applicant revalidation fails.
func (s *AdmissionService) Complete(ctx context.Context, id, userID string) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != models.StateManagerApproved {
		return nil, transitionError(file.State, models.StateCompleted)
	}
	if err := s.revalidate(ctx, file); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:        file.ID,
		FromState: models.StateManagerApproved,
		ToState:   models.StateCompleted,
	}); err != nil {
		return nil, err
	}

	student, err := s.createStudent(ctx, file)
	if err != nil {
		// The file is completed; student creation is retried manually.
		s.logger.Error("student creation failed after completion",
			zap.String("file_id", file.ID), zap.Error(err))
	} else {
		file.StudentID = &student.ID
	}

	s.appendApproval(ctx, file.ID, userID, models.ApprovalCompletion, models.DecisionCompleted, "admission completed")
	s.finishTransition(ctx, file, models.StateManagerApproved, userID, models.AuditActionCompletion, "admission completed", "admission_completed", models.PriorityHigh)
	return file, nil
}

// Cancel moves any non-terminal state → cancelled. Completed files cannot
// be cancelled.
func (s *AdmissionService) Cancel(ctx context.Context, id, userID string, req dto.CancelRequest) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State.Terminal() {
		return nil, transitionError(file.State, models.StateCancelled)
	}
	from := file.State
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:        file.ID,
		FromState: from,
		ToState:   models.StateCancelled,
	}); err != nil {
		return nil, err
	}
	s.finishTransition(ctx, file, from, userID, models.AuditActionCancellation, "admission cancelled: "+req.Reason, "admission_cancelled", models.PriorityMedium)
	return file, nil
}

// Revalidate re-runs the completeness checks and returns the itemised
// violations without changing state.
func (s *AdmissionService) Revalidate(ctx context.Context, id string) (*dto.RevalidationResult, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	guardians, err := s.guardians.ListByFile(ctx, file.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardians")
	}
	violations := s.applicantViolations(file, guardians)
	return &dto.RevalidationResult{Valid: len(violations) == 0, Violations: violations}, nil
}

// ResolveRecipient implements the notification recipient lookup for
// admission files.
func (s *AdmissionService) ResolveRecipient(ctx context.Context, modelName, recordID string) ([]string, mailer.TemplateData, error) {
	if modelName != "admission_file" {
		return nil, mailer.TemplateData{}, fmt.Errorf("unsupported model %q", modelName)
	}
	file, err := s.files.GetByID(ctx, recordID)
	if err != nil {
		return nil, mailer.TemplateData{}, fmt.Errorf("load admission file: %w", err)
	}
	data := mailer.TemplateData{
		ApplicantName: file.ApplicantName,
		FileNumber:    file.FileNumber,
		State:         string(file.State),
	}
	if program, err := s.programs.GetProgram(ctx, file.ProgramID); err == nil {
		data.ProgramName = program.Name
	}
	return []string{file.Email}, data, nil
}

func (s *AdmissionService) reject(ctx context.Context, id, userID string, req dto.DecisionRequest, from, to models.AdmissionState, approvalType models.ApprovalType) (*models.AdmissionFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.State != from {
		return nil, transitionError(file.State, to)
	}
	if strings.TrimSpace(req.Comments) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection requires a reason")
	}
	if err := s.transition(ctx, file, repository.UpdateStateParams{
		ID:        file.ID,
		FromState: from,
		ToState:   to,
	}); err != nil {
		return nil, err
	}
	s.appendApproval(ctx, file.ID, userID, approvalType, models.DecisionRejected, req.Comments)
	s.finishTransition(ctx, file, from, userID, models.AuditActionRejection, "application rejected: "+req.Comments, "admission_rejected", models.PriorityHigh)
	return file, nil
}

// transition performs the guarded state write. A lost race surfaces as
// InvalidTransition: the precondition no longer holds.
func (s *AdmissionService) transition(ctx context.Context, file *models.AdmissionFile, params repository.UpdateStateParams) error {
	if err := s.files.UpdateState(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("file is no longer in state %s", params.FromState))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admission state")
	}
	file.State = params.ToState
	return nil
}

// finishTransition records the audit entry and queues the notification for
// a successful state change. Both are best-effort.
func (s *AdmissionService) finishTransition(ctx context.Context, file *models.AdmissionFile, from models.AdmissionState, userID string, action models.AuditAction, description, templateRef string, priority models.EmailPriority) {
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "admission_file",
		RecordID:    file.ID,
		RecordName:  file.FileNumber,
		UserID:      optionalID(userID),
		Action:      action,
		Description: description,
		OldValues:   map[string]string{"state": string(from)},
		NewValues:   map[string]string{"state": string(file.State)},
	})
	if templateRef == "" || s.notify == nil {
		return
	}
	s.notify.Notify(ctx, Notification{
		TemplateRef: templateRef,
		ModelName:   "admission_file",
		RecordID:    file.ID,
		RecordName:  file.FileNumber,
		Priority:    priority,
		TriggeredBy: optionalID(userID),
	})
}

func (s *AdmissionService) appendApproval(ctx context.Context, fileID, userID string, approvalType models.ApprovalType, decision models.ApprovalDecision, comments string) {
	record := &models.ApprovalRecord{
		AdmissionFileID: fileID,
		ApproverID:      optionalID(userID),
		Type:            approvalType,
		Decision:        decision,
		Comments:        comments,
	}
	if err := s.approvals.Create(ctx, record); err != nil {
		// The transition already committed; losing the approval history
		// entry is escalated to the audit trail, not just a log line.
		s.logger.Error("failed to append approval record",
			zap.String("file_id", fileID), zap.Error(err))
		s.audit.Record(ctx, AuditEntry{
			ModelName:   "approval_record",
			RecordID:    fileID,
			UserID:      optionalID(userID),
			Action:      models.AuditActionWrite,
			Severity:    models.SeverityHigh,
			Description: "approval record append failed: " + err.Error(),
			NewValues:   record,
		})
	}
}

func (s *AdmissionService) createStudent(ctx context.Context, file *models.AdmissionFile) (*models.Student, error) {
	year := time.Now().UTC().Year()
	seq, err := s.students.NextSequence(ctx, year, file.ProgramID, file.BatchID)
	if err != nil {
		return nil, err
	}
	program, err := s.programs.GetProgram(ctx, file.ProgramID)
	if err != nil {
		return nil, err
	}
	batch, err := s.programs.GetBatch(ctx, file.BatchID)
	if err != nil {
		return nil, err
	}
	student := &models.Student{
		StudentNumber:   fmt.Sprintf("%d-%s-%s-%04d", year, program.Code, batch.Code, seq),
		AdmissionFileID: file.ID,
		FullName:        file.ApplicantName,
		NationalID:      file.NationalID,
		Email:           file.Email,
		Phone:           file.Phone,
		Gender:          file.Gender,
		BirthDate:       file.BirthDate,
		Nationality:     file.Nationality,
		ProgramID:       file.ProgramID,
		BatchID:         file.BatchID,
		AcademicLevel:   file.AcademicLevel,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, err
	}
	if err := s.files.SetStudent(ctx, file.ID, student.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return student, nil
}

func (s *AdmissionService) programCoordinator(ctx context.Context, programID string) *string {
	program, err := s.programs.GetProgram(ctx, programID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load program for coordinator assignment",
			"program_id", programID, "error", err)
		return nil
	}
	return program.CoordinatorID
}

// revalidate loads the guardians and re-checks applicant completeness,
// surfacing the itemised violations.
func (s *AdmissionService) revalidate(ctx context.Context, file *models.AdmissionFile) error {
	guardians, err := s.guardians.ListByFile(ctx, file.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardians")
	}
	if violations := s.applicantViolations(file, guardians); len(violations) > 0 {
		return incompleteData(violations)
	}
	return nil
}

// validateApplicant checks a file with guardian payloads not yet persisted.
func (s *AdmissionService) validateApplicant(file *models.AdmissionFile, payloads []dto.GuardianPayload) []string {
	guardians := make([]models.Guardian, 0, len(payloads))
	for i, g := range payloads {
		guardians = append(guardians, models.Guardian{
			Name:      g.Name,
			Phone:     g.Phone,
			IsDefault: g.IsDefault || i == 0,
			Active:    true,
		})
	}
	return s.applicantViolations(file, guardians)
}

func (s *AdmissionService) applicantViolations(file *models.AdmissionFile, guardians []models.Guardian) []string {
	var violations []string
	if len(strings.TrimSpace(file.ApplicantName)) < 3 {
		violations = append(violations, "applicant name must be at least 3 characters")
	}
	if !isDigits(file.NationalID) || len(file.NationalID) < 10 || len(file.NationalID) > 14 {
		violations = append(violations, "national id must be 10-14 digits")
	}
	if !strings.Contains(file.Email, "@") {
		violations = append(violations, "email address is invalid")
	}
	if digitCount(file.Phone) < 9 {
		violations = append(violations, "phone number must contain at least 9 digits")
	}
	now := time.Now().UTC()
	switch {
	case file.BirthDate.IsZero():
		violations = append(violations, "birth date is required")
	case file.BirthDate.After(now):
		violations = append(violations, "birth date cannot be in the future")
	default:
		if age := file.Age(now); age < s.minAge || age > s.maxAge {
			violations = append(violations, fmt.Sprintf("applicant age must be between %d and %d", s.minAge, s.maxAge))
		}
	}
	if file.ProgramID == "" {
		violations = append(violations, "program is required")
	}
	if file.BatchID == "" {
		violations = append(violations, "batch is required")
	}
	defaultOK := false
	for _, g := range guardians {
		if g.IsDefault && g.Active && digitCount(g.Phone) >= 9 && strings.TrimSpace(g.Name) != "" {
			defaultOK = true
			break
		}
	}
	if !defaultOK {
		violations = append(violations, "at least one default guardian with a valid contact is required")
	}
	return violations
}

func transitionError(from, to models.AdmissionState) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot transition from %s to %s", from, to))
}

func incompleteData(violations []string) error {
	return appErrors.Clone(appErrors.ErrIncompleteData, strings.Join(violations, "; "))
}

func optionalID(id string) *string {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return &id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func digitCount(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			count++
		}
	}
	return count
}
