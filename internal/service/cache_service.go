package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

const defaultAnalyticsCacheTTL = 10 * time.Minute

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheOptions configures the analytics read-model cache.
type CacheOptions struct {
	Enabled bool
	TTL     time.Duration
	Metrics *MetricsService
	Logger  *zap.Logger
}

// CacheService fronts analytics reads. Cache failures are reported but never fail a read,
// since Postgres stays the source of truth.
type CacheService struct {
	repo    CacheRepository
	opts    CacheOptions
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, opts CacheOptions) *CacheService {
	if opts.TTL <= 0 {
		opts.TTL = defaultAnalyticsCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, opts: opts, metrics: opts.Metrics, logger: logger.Named("analytics_cache")}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.opts.Enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the configured default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.opts.TTL
	}

	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateStudent drops the student's read model and every aggregate that includes it.
// Every key is attempted; the first failure is returned.
func (s *CacheService) InvalidateStudent(ctx context.Context, studentID string) error {
	if !s.Enabled() {
		return nil
	}

	var firstErr error
	record := func(target string, err error) {
		if err == nil {
			return
		}
		s.logger.Warn("invalidate failed", zap.String("target", target), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	key := studentAnalyticsKey(studentID)
	record(key, s.repo.Delete(ctx, key))
	for _, pattern := range aggregateCachePatterns {
		record(pattern, s.repo.DeleteByPattern(ctx, pattern))
	}
	return firstErr
}
