package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acmst-college/admission-api/internal/models"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
)

type stubCacheRepo struct {
	entries map[string][]byte
}

func (s *stubCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *stubCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.entries == nil {
		s.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries[key] = raw
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	s.entries = nil
	return nil
}

type fakePipelineCounter struct {
	counts map[models.AdmissionState]int
	calls  int
}

func (f *fakePipelineCounter) CountByState(ctx context.Context) (map[models.AdmissionState]int, error) {
	f.calls++
	return f.counts, nil
}

type fakeConditionSummary struct {
	summary models.ConditionSummary
}

func (f *fakeConditionSummary) Summary(ctx context.Context, fileID string) (*models.ConditionSummary, error) {
	out := f.summary
	return &out, nil
}

type fakeEmailSummary struct {
	summary models.PendingEmailSummary
}

func (f *fakeEmailSummary) Summary(ctx context.Context) (*models.PendingEmailSummary, error) {
	out := f.summary
	return &out, nil
}

func TestDashboardOverviewBucketsStates(t *testing.T) {
	counter := &fakePipelineCounter{counts: map[models.AdmissionState]int{
		models.StateNew:               3,
		models.StateMinistryPending:   2,
		models.StateMinistryRejected:  1,
		models.StateHealthRejected:    1,
		models.StateManagerRejected:   2,
		models.StateCoordinatorReview: 4,
		models.StateCompleted:         5,
		models.StateCancelled:         2,
	}}
	svc := NewDashboardService(counter, &fakeConditionSummary{}, &fakeEmailSummary{}, nil, time.Minute, zap.NewNop())

	result, cacheHit, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 20, result.Pipeline.Total)
	assert.Equal(t, 5, result.Pipeline.Completed)
	assert.Equal(t, 2, result.Pipeline.Cancelled)
	assert.Equal(t, 4, result.Pipeline.Rejected)
	assert.Equal(t, 9, result.Pipeline.InProgress)
	assert.Equal(t, 4, result.Pipeline.ByState["coordinator_review"])
}

func TestDashboardOverviewServesFromCache(t *testing.T) {
	counter := &fakePipelineCounter{counts: map[models.AdmissionState]int{models.StateNew: 1}}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(counter, &fakeConditionSummary{}, &fakeEmailSummary{}, cache, time.Minute, zap.NewNop())

	first, firstHit, err := svc.Overview(context.Background())
	require.NoError(t, err)
	second, secondHit, err := svc.Overview(context.Background())
	require.NoError(t, err)

	assert.False(t, firstHit)
	assert.True(t, secondHit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, counter.calls)
}

func TestDashboardInvalidateForcesRebuild(t *testing.T) {
	counter := &fakePipelineCounter{counts: map[models.AdmissionState]int{models.StateNew: 1}}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(counter, &fakeConditionSummary{}, &fakeEmailSummary{}, cache, time.Minute, zap.NewNop())

	_, _, err := svc.Overview(context.Background())
	require.NoError(t, err)
	svc.Invalidate(context.Background())
	_, _, err = svc.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, counter.calls)
}
