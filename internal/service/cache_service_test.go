package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCacheRepo struct {
	stubCacheRepo
	getErr    error
	deleteErr error
}

func (f *failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	return f.stubCacheRepo.Get(ctx, key, dest)
}

func (f *failingCacheRepo) Delete(ctx context.Context, keys ...string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.stubCacheRepo.Delete(ctx, keys...)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := &stubCacheRepo{}
	cache := NewCacheService(repo, CacheOptions{Enabled: false})

	require.NoError(t, cache.Set(context.Background(), "k", 1, 0))
	var out int
	hit, err := cache.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, repo.store)

	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
}

func TestCacheServiceRoundTripAndMiss(t *testing.T) {
	cache := NewCacheService(&stubCacheRepo{}, CacheOptions{Enabled: true, TTL: time.Minute, Metrics: NewMetricsService()})
	ctx := context.Background()

	var out []string
	hit, err := cache.Get(ctx, "analytics:class:c1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "analytics:class:c1", []string{"a"}, 0))
	hit, err = cache.Get(ctx, "analytics:class:c1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, out)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	boom := errors.New("redis down")
	repo := &failingCacheRepo{getErr: boom, deleteErr: boom}
	cache := NewCacheService(repo, CacheOptions{Enabled: true})

	var out int
	hit, err := cache.Get(context.Background(), "k", &out)
	assert.False(t, hit)
	assert.ErrorIs(t, err, boom)

	err = cache.InvalidateStudent(context.Background(), "stu-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, aggregateCachePatterns, repo.patterns)
}
