package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:admissions"

type pipelineCounter interface {
	CountByState(ctx context.Context) (map[models.AdmissionState]int, error)
}

type conditionSummarizer interface {
	Summary(ctx context.Context, fileID string) (*models.ConditionSummary, error)
}

type emailSummarizer interface {
	Summary(ctx context.Context) (*models.PendingEmailSummary, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// DashboardService aggregates pipeline, condition and email metrics into one
// cached payload.
type DashboardService struct {
	admissions pipelineCounter
	conditions conditionSummarizer
	emails     emailSummarizer
	cache      dashboardCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewDashboardService constructs the service. A nil cache disables caching.
func NewDashboardService(admissions pipelineCounter, conditions conditionSummarizer, emails emailSummarizer, cache dashboardCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		admissions: admissions,
		conditions: conditions,
		emails:     emails,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Overview returns the aggregated dashboard, served from cache when fresh.
// The second return value reports whether the snapshot came from cache.
func (s *DashboardService) Overview(ctx context.Context) (*dto.DashboardResponse, bool, error) {
	if s.cache != nil {
		var cached dto.DashboardResponse
		hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	response, err := s.build(ctx)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, response, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return response, false, nil
}

// Invalidate drops the cached dashboard so the next read rebuilds it.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) build(ctx context.Context) (*dto.DashboardResponse, error) {
	counts, err := s.admissions.CountByState(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admission files")
	}

	pipeline := dto.PipelineSection{ByState: make(map[string]int, len(counts))}
	for state, total := range counts {
		pipeline.ByState[string(state)] = total
		pipeline.Total += total
		switch state {
		case models.StateCompleted:
			pipeline.Completed += total
		case models.StateCancelled:
			pipeline.Cancelled += total
		case models.StateMinistryRejected, models.StateHealthRejected,
			models.StateCoordinatorRejected, models.StateManagerRejected:
			pipeline.Rejected += total
		default:
			pipeline.InProgress += total
		}
	}

	conditions, err := s.conditions.Summary(ctx, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise conditions")
	}
	emails, err := s.emails.Summary(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise pending emails")
	}

	return &dto.DashboardResponse{
		Pipeline:   pipeline,
		Conditions: *conditions,
		Emails:     *emails,
	}, nil
}
