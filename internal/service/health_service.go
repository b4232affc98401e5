package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type healthStore interface {
	Create(ctx context.Context, check *models.HealthCheck) error
	GetByID(ctx context.Context, id string) (*models.HealthCheck, error)
	ListByFile(ctx context.Context, fileID string) ([]models.HealthCheck, error)
	Update(ctx context.Context, check *models.HealthCheck) error
	UpdateState(ctx context.Context, id string, from, to models.HealthCheckState) error
}

// healthCascade advances or rejects the parent admission file once the
// examiner's decision is final. Implemented by AdmissionService.
type healthCascade interface {
	HealthApprove(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error)
	HealthReject(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error)
}

// HealthService manages the medical questionnaire lifecycle for admission
// files in health_required.
type HealthService struct {
	repo    healthStore
	files   admissionFileReader
	cascade healthCascade
	audit   auditRecorder
	logger  *zap.Logger
}

// NewHealthService constructs the service. The cascade is wired after
// construction because it is implemented by the admission service.
func NewHealthService(repo healthStore, files admissionFileReader, audit auditRecorder, logger *zap.Logger) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthService{repo: repo, files: files, audit: audit, logger: logger}
}

// SetCascade wires the parent file transitions.
func (s *HealthService) SetCascade(cascade healthCascade) {
	s.cascade = cascade
}

// Create opens a draft health check. Only legal while the parent file is in
// health_required.
func (s *HealthService) Create(ctx context.Context, fileID, examinerID string, req dto.HealthCheckRequest) (*dto.HealthCheckResponse, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission file")
	}
	if file.State != models.StateHealthRequired {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "health checks can only be created while the file awaits medical examination")
	}
	check := &models.HealthCheck{
		AdmissionFileID: fileID,
		ExaminerID:      examinerID,
	}
	applyQuestionnaire(check, req)
	if err := s.repo.Create(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create health check")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "health_check",
		RecordID:    check.ID,
		RecordName:  file.FileNumber,
		UserID:      optionalID(examinerID),
		Action:      models.AuditActionCreate,
		Description: "health check opened",
		IsSensitive: true,
	})
	return healthResponse(check), nil
}

// Get returns one health check with derived values.
func (s *HealthService) Get(ctx context.Context, id string) (*dto.HealthCheckResponse, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return healthResponse(check), nil
}

// ListByFile returns all checks of one admission file.
func (s *HealthService) ListByFile(ctx context.Context, fileID string) ([]dto.HealthCheckResponse, error) {
	checks, err := s.repo.ListByFile(ctx, fileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list health checks")
	}
	responses := make([]dto.HealthCheckResponse, 0, len(checks))
	for i := range checks {
		responses = append(responses, *healthResponse(&checks[i]))
	}
	return responses, nil
}

// Update replaces the questionnaire of a draft check.
func (s *HealthService) Update(ctx context.Context, id, examinerID string, req dto.HealthCheckRequest) (*dto.HealthCheckResponse, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.State != models.HealthDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only draft health checks can be edited")
	}
	applyQuestionnaire(check, req)
	if err := s.repo.Update(ctx, check); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "health check is no longer a draft")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update health check")
	}
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "health_check",
		RecordID:    check.ID,
		UserID:      optionalID(examinerID),
		Action:      models.AuditActionWrite,
		Description: "health questionnaire updated",
		IsSensitive: true,
	})
	return healthResponse(check), nil
}

// Submit moves a draft to submitted. The fitness assessment must be set.
func (s *HealthService) Submit(ctx context.Context, id, examinerID string) (*dto.HealthCheckResponse, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.State != models.HealthDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only draft health checks can be submitted")
	}
	if check.MedicalFitness == "" {
		return nil, appErrors.Clone(appErrors.ErrIncompleteData, "medical fitness assessment is required before submission")
	}
	if err := s.changeState(ctx, check, models.HealthDraft, models.HealthSubmitted, examinerID); err != nil {
		return nil, err
	}
	return healthResponse(check), nil
}

// Approve finalises a submitted check. A fit or conditionally fit applicant
// cascades the parent file forward; an unfit one cascades a rejection.
func (s *HealthService) Approve(ctx context.Context, id, approverID string, req dto.DecisionRequest) (*dto.HealthCheckResponse, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.State != models.HealthSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only submitted health checks can be approved")
	}
	if err := s.changeState(ctx, check, models.HealthSubmitted, models.HealthApproved, approverID); err != nil {
		return nil, err
	}

	if s.cascade != nil {
		switch check.MedicalFitness {
		case models.FitnessFit, models.FitnessConditional:
			if _, err := s.cascade.HealthApprove(ctx, check.AdmissionFileID, approverID, req); err != nil {
				s.logger.Warn("health approval cascade failed",
					zap.String("file_id", check.AdmissionFileID), zap.Error(err))
			}
		case models.FitnessUnfit:
			reason := req.Comments
			if reason == "" {
				reason = "medically unfit"
			}
			if _, err := s.cascade.HealthReject(ctx, check.AdmissionFileID, approverID, dto.DecisionRequest{Comments: reason}); err != nil {
				s.logger.Warn("health rejection cascade failed",
					zap.String("file_id", check.AdmissionFileID), zap.Error(err))
			}
		}
	}
	return healthResponse(check), nil
}

// Reject sends a submitted check back as rejected without touching the
// parent file; the examiner opens a fresh check afterwards.
func (s *HealthService) Reject(ctx context.Context, id, approverID string) (*dto.HealthCheckResponse, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.State != models.HealthSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only submitted health checks can be rejected")
	}
	if err := s.changeState(ctx, check, models.HealthSubmitted, models.HealthRejected, approverID); err != nil {
		return nil, err
	}
	return healthResponse(check), nil
}

// Reset reopens a rejected check as a draft so the examiner can correct and
// resubmit it instead of starting over.
func (s *HealthService) Reset(ctx context.Context, id, examinerID string) (*dto.HealthCheckResponse, error) {
	check, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.State != models.HealthRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only rejected health checks can be reset")
	}
	if err := s.changeState(ctx, check, models.HealthRejected, models.HealthDraft, examinerID); err != nil {
		return nil, err
	}
	return healthResponse(check), nil
}

func (s *HealthService) load(ctx context.Context, id string) (*models.HealthCheck, error) {
	check, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load health check")
	}
	return check, nil
}

func (s *HealthService) changeState(ctx context.Context, check *models.HealthCheck, from, to models.HealthCheckState, userID string) error {
	if err := s.repo.UpdateState(ctx, check.ID, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "health check state changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update health check state")
	}
	check.State = to
	s.audit.Record(ctx, AuditEntry{
		ModelName:   "health_check",
		RecordID:    check.ID,
		UserID:      optionalID(userID),
		Action:      models.AuditActionWorkflow,
		Description: "health check " + string(to),
		OldValues:   map[string]string{"state": string(from)},
		NewValues:   map[string]string{"state": string(to)},
		IsSensitive: true,
	})
	return nil
}

func applyQuestionnaire(check *models.HealthCheck, req dto.HealthCheckRequest) {
	check.HasChronicDiseases = req.HasChronicDiseases
	check.ChronicDiseasesDetails = req.ChronicDiseasesDetails
	check.TakesMedications = req.TakesMedications
	check.MedicationsDetails = req.MedicationsDetails
	check.HasAllergies = req.HasAllergies
	check.AllergiesDetails = req.AllergiesDetails
	check.HasDisabilities = req.HasDisabilities
	check.DisabilitiesDetails = req.DisabilitiesDetails
	check.BloodType = req.BloodType
	check.HeightCM = req.HeightCM
	check.WeightKG = req.WeightKG
	check.MedicalFitness = req.MedicalFitness
	check.MedicalNotes = req.MedicalNotes
	check.Restrictions = req.Restrictions
	check.FollowUpRequired = req.FollowUpRequired
	check.FollowUpDate = req.FollowUpDate
}

func healthResponse(check *models.HealthCheck) *dto.HealthCheckResponse {
	return &dto.HealthCheckResponse{
		HealthCheck: *check,
		BMI:         check.BMI(),
		BMICategory: check.BMICategory(),
	}
}
