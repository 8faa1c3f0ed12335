package backtest

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/ml"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

// syntheticDataset builds rounds of perPosition players at every position.
// price(round, k) sets the price of the k-th player of a round.
func syntheticDataset(t *testing.T, rounds, perPosition int, price func(round, k int) float64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	var records []models.PlayerRound
	for r := 1; r <= rounds; r++ {
		k := 0
		for p, pos := range models.Positions {
			for j := 0; j < perPosition; j++ {
				id := p*100 + j + 1
				records = append(records, models.PlayerRound{
					PlayerID: id,
					Season:   2023,
					Round:    r,
					Position: pos,
					Price:    price(r, k),
					Points:   float64(j) + rng.Float64()*4,
					Nickname: "player",
					ClubName: "club",
				})
				k++
			}
		}
	}
	dataset.BuildFeatures(records)
	ds, err := dataset.New(records)
	require.NoError(t, err)
	return ds
}

func variedPrice(_, k int) float64 { return 3 + float64(k%7) }

func quietEngine(trainer ml.Trainer, opts ...EngineOption) *Engine {
	entry := logger.Discard().WithField("service", "test")
	opt := optimizer.NewSquadOptimizer(0, optimizer.WithLogger(entry))
	return NewEngine(trainer, opt, append([]EngineOption{WithEngineLogger(entry)}, opts...)...)
}

// sentinelTrainer checks that every training row's price, set to its round
// number, is below the round being predicted.
type sentinelTrainer struct {
	mu         sync.Mutex
	fits       int
	violations []string
}

type sentinelModel struct {
	trainer  *sentinelTrainer
	trainMax float64
}

func (s *sentinelTrainer) Fit(_ context.Context, X [][]float64, _ []float64) (ml.Model, error) {
	s.mu.Lock()
	s.fits++
	s.mu.Unlock()
	max := 0.0
	for _, row := range X {
		if row[2] > max {
			max = row[2]
		}
	}
	return &sentinelModel{trainer: s, trainMax: max}, nil
}

func (m *sentinelModel) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if m.trainMax >= row[2] {
			m.trainer.mu.Lock()
			m.trainer.violations = append(m.trainer.violations, "training saw a row from the evaluated round or later")
			m.trainer.mu.Unlock()
		}
		out[i] = row[0]
	}
	return out, nil
}

func TestRun_NeverTrainsOnCurrentOrFutureRounds(t *testing.T) {
	ds := syntheticDataset(t, 8, 6, func(round, _ int) float64 { return float64(round) })
	trainer := &sentinelTrainer{}

	cfg := DefaultConfig()
	cfg.MinTrainRounds = 1
	summary, err := quietEngine(trainer).Run(context.Background(), ds, cfg)
	require.NoError(t, err)

	assert.Greater(t, trainer.fits, 0)
	assert.Empty(t, trainer.violations)
	assert.Equal(t, trainer.fits, summary.RoundsEvaluated)
}

func TestRun_WarmUpCoversWholeDataset(t *testing.T) {
	ds := syntheticDataset(t, 5, 6, variedPrice)
	trainer := &sentinelTrainer{}

	cfg := DefaultConfig()
	cfg.MinTrainRounds = 5
	summary, err := quietEngine(trainer).Run(context.Background(), ds, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, trainer.fits)
	assert.Equal(t, 0, summary.RoundsEvaluated)
	assert.Empty(t, summary.Series)
	assert.Zero(t, summary.MAE)
	assert.Zero(t, summary.RMSE)
	assert.Zero(t, summary.Correlation)
	assert.Zero(t, summary.TopKHitRateMean)
	assert.Zero(t, summary.MeanUplift)
}

func TestRun_SkipsRoundsWithTooFewTrainingRows(t *testing.T) {
	// 30 players per round: rounds at index 1..3 have 30, 60 and 90 rows behind them.
	ds := syntheticDataset(t, 6, 6, variedPrice)

	var mu sync.Mutex
	statuses := make(map[string]int)
	engine := quietEngine(&ml.RidgeTrainer{Lambda: 1}, WithProgress(func(p Progress) {
		mu.Lock()
		statuses[p.Status]++
		mu.Unlock()
	}))

	cfg := DefaultConfig()
	cfg.MinTrainRounds = 1
	summary, err := engine.Run(context.Background(), ds, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RoundsEvaluated)
	assert.Equal(t, 4, summary.RoundsSkipped)
	assert.Equal(t, map[string]int{StatusWarmUp: 1, StatusInsufficientData: 3, StatusEvaluated: 2}, statuses)
	for _, r := range summary.Series {
		assert.GreaterOrEqual(t, r.TopKHitRate, 0.0)
		assert.LessOrEqual(t, r.TopKHitRate, 1.0)
		assert.NotEmpty(t, r.Captain)
	}
}

func TestRun_InfeasibleRoundAbortsRun(t *testing.T) {
	ds := syntheticDataset(t, 6, 6, variedPrice)

	cfg := DefaultConfig()
	cfg.MinTrainRounds = 1
	cfg.Budget = 1
	_, err := quietEngine(&ml.RidgeTrainer{Lambda: 1}).Run(context.Background(), ds, cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, optimizer.ErrInfeasible)
	assert.Contains(t, err.Error(), "2023/5")
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	ds := syntheticDataset(t, 9, 6, variedPrice)
	trainer := &ml.ForestTrainer{Trees: 8, MaxDepth: 4, MinLeaf: 5, Seed: 42}

	cfg := DefaultConfig()
	cfg.MinTrainRounds = 2
	sequential, err := quietEngine(trainer).Run(context.Background(), ds, cfg)
	require.NoError(t, err)

	cfg.Workers = 3
	parallel, err := quietEngine(trainer).Run(context.Background(), ds, cfg)
	require.NoError(t, err)

	assert.Equal(t, sequential.Series, parallel.Series)
	assert.Equal(t, sequential.MAE, parallel.MAE)
}

func TestRun_Validation(t *testing.T) {
	ds := syntheticDataset(t, 2, 2, variedPrice)
	engine := quietEngine(&ml.RidgeTrainer{Lambda: 1})

	for _, mutate := range []func(*Config){
		func(c *Config) { c.TopK = 4 },
		func(c *Config) { c.MinTrainRounds = 0 },
		func(c *Config) { c.Budget = 0 },
		func(c *Config) { c.Budget = math.Inf(1) },
		func(c *Config) { c.Budget = math.NaN() },
		func(c *Config) { c.Formation = "4-2-4" },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := engine.Run(context.Background(), ds, cfg)
		assert.ErrorIs(t, err, optimizer.ErrValidation)
	}
}

func TestRun_HonoursCancellation(t *testing.T) {
	ds := syntheticDataset(t, 6, 6, variedPrice)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.MinTrainRounds = 1
	_, err := quietEngine(&ml.RidgeTrainer{Lambda: 1}).Run(ctx, ds, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTopKHitRate(t *testing.T) {
	records := []models.PlayerRound{
		{PlayerID: 1, Points: 10},
		{PlayerID: 2, Points: 8},
		{PlayerID: 3, Points: 1},
		{PlayerID: 4, Points: 0},
	}

	assert.Equal(t, 1.0, TopKHitRate(records, []float64{9, 7, 2, 1}, 2))
	assert.Equal(t, 0.5, TopKHitRate(records, []float64{9, 0, 7, 1}, 2))
	// k is clamped to the round size, so every player is in both sets.
	assert.Equal(t, 1.0, TopKHitRate(records, []float64{0, 0, 0, 0}, 20))
	assert.Equal(t, 0.0, TopKHitRate(nil, nil, 5))
}

func TestSummarize(t *testing.T) {
	s := &Summary{Series: []RoundResult{
		{Realized: 10, Predicted: 12, BaselineRealized: 8, TopKHitRate: 0.5},
		{Realized: 20, Predicted: 18, BaselineRealized: 21, TopKHitRate: 0.25},
	}}
	summarize(s)

	assert.Equal(t, 2, s.RoundsEvaluated)
	assert.InDelta(t, 2.0, s.MAE, 1e-12)
	assert.InDelta(t, 2.0, s.RMSE, 1e-12)
	assert.InDelta(t, 1.0, s.Correlation, 1e-12)
	assert.InDelta(t, 0.375, s.TopKHitRateMean, 1e-12)
	assert.InDelta(t, 0.5, s.MeanUplift, 1e-12)

	single := &Summary{Series: []RoundResult{{Realized: 10, Predicted: 4}}}
	summarize(single)
	assert.Zero(t, single.Correlation)
	assert.InDelta(t, 6.0, single.RMSE, 1e-12)
}

func TestSummary_RoundedAndCSV(t *testing.T) {
	s := &Summary{
		MAE:             1.23456,
		TopKHitRateMean: 0.123456,
		Series: []RoundResult{
			{Season: 2023, Round: 6, Realized: 51.236, Predicted: 48.999, TopKHitRate: 0.33333, Captain: "Hulk"},
		},
	}

	r := s.Rounded()
	assert.Equal(t, 1.235, r.MAE)
	assert.Equal(t, 0.1235, r.TopKHitRateMean)
	assert.Equal(t, 51.24, r.Series[0].Realized)
	assert.Equal(t, 49.0, r.Series[0].Predicted)
	assert.Equal(t, 0.3333, r.Series[0].TopKHitRate)
	assert.Equal(t, 51.236, s.Series[0].Realized, "original untouched")

	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, r.Series))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "season,round,realized_points,predicted_points"))
	assert.Contains(t, lines[1], "Hulk")
}
