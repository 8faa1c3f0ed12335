package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

const captainBonusShare = 0.5

type SquadSummary struct {
	StarterCost             float64 `json:"starter_cost"`
	PredictedWithoutCaptain float64 `json:"predicted_points_without_captain"`
	CaptainBonus            float64 `json:"captain_bonus"`
	PredictedTotal          float64 `json:"predicted_points_total"`
	TotalCost               float64 `json:"total_cost"`
}

type SquadResponse struct {
	Formation   string                            `json:"formation"`
	Budget      float64                           `json:"budget"`
	Round       models.RoundKey                   `json:"round"`
	ScoreSource string                            `json:"score_source"`
	Starters    []optimizer.Candidate             `json:"starters"`
	Bench       []optimizer.Candidate             `json:"bench"`
	Captain     *optimizer.CaptainSelection       `json:"captain"`
	Luxury      *optimizer.LuxuryReserveSelection `json:"luxury_reserve"`
	Summary     SquadSummary                      `json:"summary"`
}

// SquadService turns the latest prediction snapshot into a squad.
type SquadService struct {
	snapshots SnapshotProvider
	optimizer *optimizer.SquadOptimizer
	cache     *CacheService
	ttl       time.Duration
	metrics   *Metrics
	logger    *logrus.Entry
}

func NewSquadService(snapshots SnapshotProvider, opt *optimizer.SquadOptimizer, cache *CacheService, ttl time.Duration, metrics *Metrics, logger *logrus.Entry) *SquadService {
	return &SquadService{
		snapshots: snapshots,
		optimizer: opt,
		cache:     cache,
		ttl:       ttl,
		metrics:   metrics,
		logger:    logger,
	}
}

// GenerateSquad optimizes a squad for the predicted round. The boolean
// reports whether the response came from the cache.
func (s *SquadService) GenerateSquad(ctx context.Context, budget float64, formation string) (*SquadResponse, bool, error) {
	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget <= 0 {
		return nil, false, fmt.Errorf("%w: budget must be positive", optimizer.ErrValidation)
	}
	spec, err := models.Formation(formation)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", optimizer.ErrValidation, err)
	}

	snap := s.snapshots.Snapshot()
	if snap == nil {
		return nil, false, ErrNoPredictions
	}

	log := logger.WithSquadContext(formation, budget).WithField("round", snap.Round.String())
	key := SquadCacheKey(snap.Round, budget, formation) + ":" + snap.Version

	var cached SquadResponse
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.observeCache(true)
		return &cached, true, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		log.WithError(err).Warn("Squad cache read failed")
	}
	s.observeCache(false)

	sel, err := s.optimizer.Select(ctx, snap.Candidates, budget, spec)
	if err != nil {
		s.count(formation, "error")
		return nil, false, err
	}
	s.count(formation, "ok")

	resp := buildSquadResponse(sel, formation, budget, snap)
	s.cache.setLogged(ctx, log, key, resp, s.ttl)

	log.WithFields(logrus.Fields{
		"predicted_total": resp.Summary.PredictedTotal,
		"cost":            resp.Summary.StarterCost,
	}).Info("Squad generated")

	return resp, false, nil
}

func buildSquadResponse(sel *optimizer.Selection, formation string, budget float64, snap *Snapshot) *SquadResponse {
	cost := sel.Squad.StarterCost()
	points := sel.Squad.StarterScore()
	bonus := 0.0
	if sel.Captain != nil {
		bonus = captainBonusShare * sel.Captain.Score
	}

	bench := sel.Squad.Bench
	if bench == nil {
		bench = []optimizer.Candidate{}
	}

	return &SquadResponse{
		Formation:   formation,
		Budget:      budget,
		Round:       snap.Round,
		ScoreSource: snap.ScoreSource,
		Starters:    sel.Squad.Starters,
		Bench:       bench,
		Captain:     sel.Captain,
		Luxury:      sel.Luxury,
		Summary: SquadSummary{
			StarterCost:             round2(cost),
			PredictedWithoutCaptain: round2(points),
			CaptainBonus:            round2(bonus),
			PredictedTotal:          round2(points + bonus),
			TotalCost:               round2(cost),
		},
	}
}

func (s *SquadService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.cacheResult("squad", hit)
	}
}

func (s *SquadService) count(formation, result string) {
	if s.metrics != nil {
		s.metrics.SquadsGenerated.WithLabelValues(formation, result).Inc()
	}
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
