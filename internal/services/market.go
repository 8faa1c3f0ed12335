package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/providers"
)

// MarketStatusFetcher is implemented by providers.CartolaClient.
type MarketStatusFetcher interface {
	MarketStatus(ctx context.Context) (*providers.MarketStatus, error)
}

// MarketService serves the upstream market status through a TTL cache.
// Without Redis it keeps the last payload in memory for the same TTL.
type MarketService struct {
	fetcher MarketStatusFetcher
	cache   *CacheService
	ttl     time.Duration
	metrics *Metrics
	logger  *logrus.Entry

	mu        sync.Mutex
	local     json.RawMessage
	localTill time.Time
	now       func() time.Time
}

func NewMarketService(fetcher MarketStatusFetcher, cache *CacheService, ttl time.Duration, metrics *Metrics, logger *logrus.Entry) *MarketService {
	return &MarketService{
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Status returns the raw market status payload and whether it was cached.
func (s *MarketService) Status(ctx context.Context) (json.RawMessage, bool, error) {
	key := MarketStatusCacheKey()

	if s.cache.Enabled() {
		var raw json.RawMessage
		err := s.cache.Get(ctx, key, &raw)
		if err == nil {
			s.observeCache(true)
			return raw, true, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.WithError(err).Warn("Market status cache read failed")
		}
	} else if raw := s.localStatus(); raw != nil {
		s.observeCache(true)
		return raw, true, nil
	}
	s.observeCache(false)

	status, err := s.fetcher.MarketStatus(ctx)
	if err != nil {
		return nil, false, err
	}

	if s.cache.Enabled() {
		s.cache.setLogged(ctx, s.logger, key, status.Raw, s.ttl)
	} else {
		s.mu.Lock()
		s.local = status.Raw
		s.localTill = s.now().Add(s.ttl)
		s.mu.Unlock()
	}
	return status.Raw, false, nil
}

func (s *MarketService) localStatus() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil || !s.now().Before(s.localTill) {
		return nil
	}
	return s.local
}

func (s *MarketService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.cacheResult("market", hit)
	}
}
