package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

type cachedValue struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestCacheService_SetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCacheService(db)
	ctx := context.Background()

	mock.ExpectSet("k", []byte(`{"name":"a","score":3}`), time.Minute).SetVal("OK")
	require.NoError(t, cache.Set(ctx, "k", cachedValue{Name: "a", Score: 3}, time.Minute))

	mock.ExpectGet("k").SetVal(`{"name":"a","score":3}`)
	var got cachedValue
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, cachedValue{Name: "a", Score: 3}, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheService_MissAndFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCacheService(db)
	ctx := context.Background()
	var dest cachedValue

	mock.ExpectGet("missing").RedisNil()
	assert.ErrorIs(t, cache.Get(ctx, "missing", &dest), ErrCacheMiss)

	mock.ExpectGet("broken").SetErr(errors.New("connection refused"))
	err := cache.Get(ctx, "broken", &dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheService_DisabledWithoutClient(t *testing.T) {
	cache := NewCacheService(nil)
	ctx := context.Background()

	assert.False(t, cache.Enabled())
	assert.NoError(t, cache.Set(ctx, "k", 1, time.Minute))
	var v int
	assert.ErrorIs(t, cache.Get(ctx, "k", &v), ErrCacheMiss)
	assert.NoError(t, cache.Delete(ctx, "k"))
	assert.NoError(t, cache.Ping(ctx))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "squad:2024:12:4-3-3:100.50", SquadCacheKey(models.RoundKey{Season: 2024, Round: 12}, 100.5, "4-3-3"))

	cfg := backtest.DefaultConfig()
	assert.Equal(t, "backtest:v1:4-3-3:200.00:20:5", BacktestCacheKey("v1", cfg))
	assert.Equal(t, "market:status", MarketStatusCacheKey())
}
