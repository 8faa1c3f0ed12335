package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/ml"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

// ErrInsufficientData marks a round skipped for lack of training rows. It is
// never returned from Run.
var ErrInsufficientData = errors.New("insufficient training data")

const (
	DefaultBudget         = 200.0
	DefaultTopK           = 20
	DefaultMinTrainRounds = 5
	DefaultMinTrainRows   = 100
	MinTopK               = 5
)

// Config holds the parameters of one backtest run.
type Config struct {
	Budget         float64 `json:"budget"`
	Formation      string  `json:"formation"`
	TopK           int     `json:"top_k"`
	MinTrainRounds int     `json:"min_train_rounds"`
	MinTrainRows   int     `json:"-"`
	Workers        int     `json:"-"`
}

// DefaultConfig mirrors the API defaults.
func DefaultConfig() Config {
	return Config{
		Budget:         DefaultBudget,
		Formation:      models.DefaultFormation,
		TopK:           DefaultTopK,
		MinTrainRounds: DefaultMinTrainRounds,
		MinTrainRows:   DefaultMinTrainRows,
		Workers:        1,
	}
}

// Validate checks the caller supplied parameters.
func (c Config) Validate() error {
	if math.IsNaN(c.Budget) || math.IsInf(c.Budget, 0) || c.Budget <= 0 {
		return fmt.Errorf("%w: budget must be a positive finite number", optimizer.ErrValidation)
	}
	if _, err := models.Formation(c.Formation); err != nil {
		return fmt.Errorf("%w: %v", optimizer.ErrValidation, err)
	}
	if c.TopK < MinTopK {
		return fmt.Errorf("%w: top_k must be at least %d", optimizer.ErrValidation, MinTopK)
	}
	if c.MinTrainRounds < 1 {
		return fmt.Errorf("%w: min_train_rounds must be at least 1", optimizer.ErrValidation)
	}
	return nil
}

// RoundResult is the outcome of one evaluated round.
type RoundResult struct {
	Season              int     `json:"season" csv:"season"`
	Round               int     `json:"round" csv:"round"`
	Realized            float64 `json:"realized_points" csv:"realized_points"`
	Predicted           float64 `json:"predicted_points" csv:"predicted_points"`
	BaselineRealized    float64 `json:"baseline_realized_points" csv:"baseline_realized_points"`
	BaselinePredicted   float64 `json:"baseline_predicted_points" csv:"baseline_predicted_points"`
	TopKHitRate         float64 `json:"topk_hit_rate" csv:"topk_hit_rate"`
	LuxuryUsed          bool    `json:"luxury_used" csv:"luxury_used"`
	LuxuryDelta         float64 `json:"luxury_delta" csv:"luxury_delta"`
	BaselineLuxuryUsed  bool    `json:"baseline_luxury_used" csv:"baseline_luxury_used"`
	BaselineLuxuryDelta float64 `json:"baseline_luxury_delta" csv:"baseline_luxury_delta"`
	Captain             string  `json:"captain" csv:"captain"`
	CaptainClub         string  `json:"captain_club" csv:"captain_club"`
}

// Summary aggregates a backtest run.
type Summary struct {
	Config          Config        `json:"config"`
	MAE             float64       `json:"mae_team"`
	RMSE            float64       `json:"rmse_team"`
	Correlation     float64       `json:"corr_team"`
	TopKHitRateMean float64       `json:"topk_hit_rate_mean"`
	MeanUplift      float64       `json:"mean_uplift_vs_baseline"`
	RoundsEvaluated int           `json:"rounds_evaluated"`
	RoundsSkipped   int           `json:"rounds_skipped"`
	Series          []RoundResult `json:"series"`
}

// Round states reported through Progress.
const (
	StatusWarmUp           = "warm_up"
	StatusInsufficientData = "insufficient_data"
	StatusEvaluated        = "evaluated"
)

// Progress describes one finished round.
type Progress struct {
	RunID  string `json:"run_id"`
	Season int    `json:"season"`
	Round  int    `json:"round"`
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Status string `json:"status"`
}

// Engine runs walk-forward backtests: for every round it trains on strictly
// earlier rounds, predicts the round and compares the model's squad with a
// baseline squad picked on trailing means.
type Engine struct {
	trainer   ml.Trainer
	optimizer *optimizer.SquadOptimizer
	logger    *logrus.Entry
	progress  func(Progress)
}

type EngineOption func(*Engine)

// WithProgress registers a per-round callback. With Workers > 1 it may be
// called from several goroutines.
func WithProgress(fn func(Progress)) EngineOption {
	return func(e *Engine) { e.progress = fn }
}

// WithEngineLogger overrides the engine's logger.
func WithEngineLogger(entry *logrus.Entry) EngineOption {
	return func(e *Engine) { e.logger = entry }
}

func NewEngine(trainer ml.Trainer, opt *optimizer.SquadOptimizer, opts ...EngineOption) *Engine {
	e := &Engine{
		trainer:   trainer,
		optimizer: opt,
		logger:    logger.WithService("backtest"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run evaluates every round of ds. Warm-up rounds and rounds with too little
// training data are skipped. An infeasible round aborts the run.
func (e *Engine) Run(ctx context.Context, ds *dataset.Dataset, cfg Config) (*Summary, error) {
	return e.RunWithID(ctx, uuid.NewString(), ds, cfg)
}

// RunWithID is Run with a caller supplied run id for progress correlation.
func (e *Engine) RunWithID(ctx context.Context, runID string, ds *dataset.Dataset, cfg Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinTrainRows <= 0 {
		cfg.MinTrainRows = DefaultMinTrainRows
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	formation, _ := models.Formation(cfg.Formation)

	start := time.Now()
	log := e.logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"formation": cfg.Formation,
		"budget":    cfg.Budget,
		"top_k":     cfg.TopK,
	})

	rounds := ds.Rounds()
	results := make([]*RoundResult, len(rounds))
	r := &runner{
		engine:    e,
		ds:        ds,
		cfg:       cfg,
		formation: formation,
		trainer:   e.trainer,
		runID:     runID,
		rounds:    rounds,
		log:       log,
	}

	for i := 0; i < len(rounds) && i < cfg.MinTrainRounds; i++ {
		r.report(i, StatusWarmUp)
	}

	if cfg.Workers == 1 {
		for i := cfg.MinTrainRounds; i < len(rounds); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := r.round(ctx, i)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
	} else {
		r.trainer = ml.LimitJobs(e.trainer, 1)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for i := cfg.MinTrainRounds; i < len(rounds); i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := r.round(gctx, i)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	summary := &Summary{Config: cfg, Series: make([]RoundResult, 0, len(rounds))}
	for _, res := range results {
		if res != nil {
			summary.Series = append(summary.Series, *res)
		}
	}
	summarize(summary)
	summary.RoundsSkipped = len(rounds) - summary.RoundsEvaluated

	log.WithFields(logrus.Fields{
		"rounds_evaluated": summary.RoundsEvaluated,
		"rounds_skipped":   summary.RoundsSkipped,
		"mae":              summary.MAE,
		"duration":         time.Since(start).String(),
	}).Info("Backtest completed")

	return summary, nil
}

type runner struct {
	engine    *Engine
	ds        *dataset.Dataset
	cfg       Config
	formation models.FormationSpec
	trainer   ml.Trainer
	runID     string
	rounds    []models.RoundKey
	log       *logrus.Entry
}

func (r *runner) report(i int, status string) {
	if r.engine.progress == nil {
		return
	}
	key := r.rounds[i]
	r.engine.progress(Progress{
		RunID:  r.runID,
		Season: key.Season,
		Round:  key.Round,
		Index:  i,
		Total:  len(r.rounds),
		Status: status,
	})
}

// round evaluates round i, returning nil without error when it is skipped.
func (r *runner) round(ctx context.Context, i int) (*RoundResult, error) {
	res, err := r.evaluate(ctx, i)
	if errors.Is(err, ErrInsufficientData) {
		r.log.WithError(err).WithField("round_index", i).Debug("Skipping round")
		r.report(i, StatusInsufficientData)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.report(i, StatusEvaluated)
	return res, nil
}

func (r *runner) evaluate(ctx context.Context, i int) (*RoundResult, error) {
	key := r.rounds[i]
	log := logger.WithRoundContext(r.log, key.Season, key.Round)

	train := r.ds.Before(i)
	if len(train) < r.cfg.MinTrainRows {
		return nil, fmt.Errorf("%w: %d rows before %s, need %d", ErrInsufficientData, len(train), key, r.cfg.MinTrainRows)
	}
	current := r.ds.Round(i)

	preds, err := ml.FitPredict(ctx, r.trainer, r.ds.Matrix(train), dataset.Targets(train), r.ds.Matrix(current))
	if err != nil {
		return nil, fmt.Errorf("round %s: %w", key, err)
	}

	baseline := make([]float64, len(current))
	for k := range current {
		baseline[k] = sanitize(current[k].Mean5)
	}

	mlSel, err := r.engine.optimizer.Select(ctx, Candidates(current, preds), r.cfg.Budget, r.formation)
	if err != nil {
		return nil, fmt.Errorf("round %s (model squad): %w", key, err)
	}
	baseSel, err := r.engine.optimizer.Select(ctx, Candidates(current, baseline), r.cfg.Budget, r.formation)
	if err != nil {
		return nil, fmt.Errorf("round %s (baseline squad): %w", key, err)
	}

	mlOut := Simulate(mlSel)
	baseOut := Simulate(baseSel)

	res := &RoundResult{
		Season:              key.Season,
		Round:               key.Round,
		Realized:            mlOut.Realized,
		Predicted:           mlOut.Predicted,
		BaselineRealized:    baseOut.Realized,
		BaselinePredicted:   baseOut.Predicted,
		TopKHitRate:         TopKHitRate(current, preds, r.cfg.TopK),
		LuxuryUsed:          mlOut.LuxuryUsed,
		LuxuryDelta:         mlOut.LuxuryDelta,
		BaselineLuxuryUsed:  baseOut.LuxuryUsed,
		BaselineLuxuryDelta: baseOut.LuxuryDelta,
	}
	if mlSel.Captain != nil {
		res.Captain = mlSel.Captain.Player.DisplayName()
		res.CaptainClub = mlSel.Captain.Player.ClubName
	}

	log.WithFields(logrus.Fields{
		"train_rows": len(train),
		"candidates": len(current),
		"realized":   res.Realized,
		"predicted":  res.Predicted,
		"baseline":   res.BaselineRealized,
	}).Debug("Round evaluated")

	return res, nil
}

// Candidates pairs each record with its score. Volatility is the trailing
// standard deviation.
func Candidates(records []models.PlayerRound, scores []float64) []optimizer.Candidate {
	out := make([]optimizer.Candidate, len(records))
	for i := range records {
		out[i] = optimizer.Candidate{
			PlayerRound: records[i],
			Score:       sanitize(scores[i]),
			Volatility:  sanitize(records[i].Std5),
		}
	}
	return out
}

// TopKHitRate is the overlap between the k best predicted and the k best
// realized players, over k. k is clamped to the round size; ties rank by
// player id.
func TopKHitRate(records []models.PlayerRound, preds []float64, k int) float64 {
	n := len(records)
	if n == 0 || k <= 0 {
		return 0
	}
	if k > n {
		k = n
	}

	topBy := func(value func(i int) float64) map[int]struct{} {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			va, vb := value(idx[a]), value(idx[b])
			if va != vb {
				return va > vb
			}
			return records[idx[a]].PlayerID < records[idx[b]].PlayerID
		})
		set := make(map[int]struct{}, k)
		for _, i := range idx[:k] {
			set[records[i].PlayerID] = struct{}{}
		}
		return set
	}

	predicted := topBy(func(i int) float64 { return preds[i] })
	realized := topBy(func(i int) float64 { return records[i].Points })

	hits := 0
	for id := range predicted {
		if _, ok := realized[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
