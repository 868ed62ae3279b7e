package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

func TestCacheRepositoryGetHitAndMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectGet("analytics:student:stu-1").SetVal(`{"studentId":"stu-1","overallPct":80,"riskLevel":"moderate"}`)
	var cached models.AnalyticsCache
	require.NoError(t, repo.Get(context.Background(), "analytics:student:stu-1", &cached))
	assert.Equal(t, models.RiskModerate, cached.RiskLevel)

	mock.ExpectGet("analytics:student:stu-2").RedisNil()
	err := repo.Get(context.Background(), "analytics:student:stu-2", &cached)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	mock.ExpectGet("analytics:student:stu-3").SetErr(errors.New("conn reset"))
	err = repo.Get(context.Background(), "analytics:student:stu-3", &cached)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositorySetAndDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectSet("analytics:risk:all", []byte(`{"safe":1,"moderate":0,"high":0,"total":1}`), time.Minute).SetVal("OK")
	require.NoError(t, repo.Set(context.Background(), "analytics:risk:all", models.RiskDistribution{Safe: 1, Total: 1}, time.Minute))

	mock.ExpectDel("analytics:student:stu-1").SetVal(1)
	require.NoError(t, repo.Delete(context.Background(), "analytics:student:stu-1"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectScan(0, "analytics:class:*", 100).SetVal([]string{"analytics:class:c1"}, 7)
	mock.ExpectDel("analytics:class:c1").SetVal(1)
	mock.ExpectScan(7, "analytics:class:*", 100).SetVal([]string{}, 0)

	require.NoError(t, repo.DeleteByPattern(context.Background(), "analytics:class:*"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryDisabled(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest models.AnalyticsCache
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", dest, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
	assert.NoError(t, repo.Ping(context.Background()))
}
