package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/internal/ml"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

// ProgressPublisher receives per-round backtest progress.
type ProgressPublisher interface {
	PublishProgress(p backtest.Progress)
}

// BacktestResult is a rounded summary tagged with its run id.
type BacktestResult struct {
	RunID string `json:"run_id"`
	*backtest.Summary
}

type BacktestService struct {
	snapshots SnapshotProvider
	engine    *backtest.Engine
	cache     *CacheService
	ttl       time.Duration
	workers   int
	metrics   *Metrics
	logger    *logrus.Entry
}

func NewBacktestService(snapshots SnapshotProvider, trainer ml.Trainer, opt *optimizer.SquadOptimizer, publisher ProgressPublisher, cache *CacheService, ttl time.Duration, workers int, metrics *Metrics, logger *logrus.Entry) *BacktestService {
	s := &BacktestService{
		snapshots: snapshots,
		cache:     cache,
		ttl:       ttl,
		workers:   workers,
		metrics:   metrics,
		logger:    logger,
	}
	s.engine = backtest.NewEngine(trainer, opt,
		backtest.WithEngineLogger(logger),
		backtest.WithProgress(func(p backtest.Progress) {
			if metrics != nil {
				metrics.RoundsProcessed.WithLabelValues(p.Status).Inc()
			}
			if publisher != nil {
				publisher.PublishProgress(p)
			}
		}),
	)
	return s
}

// RunBacktest evaluates the loaded dataset with cfg. The boolean reports a
// cache hit.
func (s *BacktestService) RunBacktest(ctx context.Context, cfg backtest.Config) (*BacktestResult, bool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return nil, false, ErrNoPredictions
	}
	cfg.Workers = s.workers

	key := BacktestCacheKey(snap.Version, cfg)
	var cached BacktestResult
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.observeCache(true)
		return &cached, true, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.WithError(err).Warn("Backtest cache read failed")
	}
	s.observeCache(false)

	runID := uuid.NewString()
	log := logger.WithBacktestContext(runID, cfg.Formation, cfg.Budget, cfg.TopK)
	log.Info("Backtest started")

	summary, err := s.engine.RunWithID(ctx, runID, snap.Dataset, cfg)
	if err != nil {
		s.countRun("error")
		log.WithError(err).Error("Backtest failed")
		return nil, false, err
	}
	s.countRun("ok")

	result := &BacktestResult{RunID: runID, Summary: summary.Rounded()}
	s.cache.setLogged(ctx, log, key, result, s.ttl)
	return result, false, nil
}

func (s *BacktestService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.cacheResult("backtest", hit)
	}
}

func (s *BacktestService) countRun(result string) {
	if s.metrics != nil {
		s.metrics.BacktestRuns.WithLabelValues(result).Inc()
	}
}
