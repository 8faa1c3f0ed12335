package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

// ErrCacheMiss is returned by Get when the key is absent or caching is off.
var ErrCacheMiss = errors.New("cache miss")

// CacheService is a JSON key-value store with per-key expiry. A nil client
// disables caching: Get always misses and Set is a no-op.
type CacheService struct {
	client *redis.Client
}

func NewCacheService(client *redis.Client) *CacheService {
	return &CacheService{
		client: client,
	}
}

func (s *CacheService) Enabled() bool {
	return s != nil && s.client != nil
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := s.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	if !s.Enabled() {
		return ErrCacheMiss
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Ping checks the connection; a disabled cache is always healthy.
func (s *CacheService) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Cache key generators
func SquadCacheKey(round models.RoundKey, budget float64, formation string) string {
	return fmt.Sprintf("squad:%d:%d:%s:%.2f", round.Season, round.Round, formation, budget)
}

// BacktestCacheKey identifies a run over a dataset version. The version
// changes whenever the dataset is reloaded.
func BacktestCacheKey(version string, cfg backtest.Config) string {
	return fmt.Sprintf("backtest:%s:%s:%.2f:%d:%d", version, cfg.Formation, cfg.Budget, cfg.TopK, cfg.MinTrainRounds)
}

func MarketStatusCacheKey() string {
	return "market:status"
}

// setLogged caches value, logging instead of failing the request on error.
func (s *CacheService) setLogged(ctx context.Context, log *logrus.Entry, key string, value interface{}, ttl time.Duration) {
	if err := s.Set(ctx, key, value, ttl); err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to cache result")
	}
}
