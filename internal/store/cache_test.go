package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStoreWithRedisMock(t *testing.T) (*Store, redismock.ClientMock) {
	s := newTestStore(t)
	rdb, mock := redismock.NewClientMock()
	s.Redis = rdb
	return s, mock
}

func TestAcquireLeaseHint_NilRedisAlwaysWins(t *testing.T) {
	s := newTestStore(t)
	won, err := s.AcquireLeaseHint(context.Background(), "owner1", time.Second)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestAcquireLeaseHint_WinsWhenSetNXSucceeds(t *testing.T) {
	s, mock := newTestStoreWithRedisMock(t)
	mock.ExpectSetNX(dispatcherLeaseKey, "owner1", time.Second).SetVal(true)

	won, err := s.AcquireLeaseHint(context.Background(), "owner1", time.Second)
	require.NoError(t, err)
	assert.True(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLeaseHint_LosesWhenAnotherOwnerHoldsTheLease(t *testing.T) {
	s, mock := newTestStoreWithRedisMock(t)
	mock.ExpectSetNX(dispatcherLeaseKey, "owner1", time.Second).SetVal(false)

	won, err := s.AcquireLeaseHint(context.Background(), "owner1", time.Second)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMetricsThenCachedMetrics(t *testing.T) {
	s, mock := newTestStoreWithRedisMock(t)
	m := Metrics{Pending: 1, Processing: 2, Completed: 3, Failed: 4}
	b, err := json.Marshal(m)
	require.NoError(t, err)

	mock.ExpectSet(metricsCacheKey, b, 5*time.Second).SetVal("OK")
	require.NoError(t, s.CacheMetrics(context.Background(), m, 5*time.Second))

	mock.ExpectGet(metricsCacheKey).SetVal(string(b))
	got, err := s.CachedMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedMetrics_NilRedisReturnsRedisNil(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CachedMetrics(context.Background())
	require.Error(t, err)
}
