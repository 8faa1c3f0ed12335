package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/ml"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
)

// ErrNoPredictions is returned until a dataset has been loaded and scored.
var ErrNoPredictions = errors.New("no predictions available")

// ScoreSourceBaseline marks a snapshot scored with trailing means because
// there was too little history to train on.
const ScoreSourceBaseline = "baseline"

// Snapshot is the scored latest round together with the dataset it came
// from. It is never mutated after publication.
type Snapshot struct {
	Version     string                `json:"version"`
	Round       models.RoundKey       `json:"round"`
	ScoreSource string                `json:"score_source"`
	Candidates  []optimizer.Candidate `json:"-"`
	Dataset     *dataset.Dataset      `json:"-"`
	TrainRows   int                   `json:"train_rows"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// SnapshotProvider exposes the current snapshot, nil before the first load.
type SnapshotProvider interface {
	Snapshot() *Snapshot
}

// Refresher reloads the dataset, trains on every round before the latest one
// and predicts the latest round.
type Refresher struct {
	source    dataset.Source
	trainer   ml.Trainer
	modelName string
	minRows   int
	metrics   *Metrics
	logger    *logrus.Entry

	mu       sync.RWMutex
	snapshot *Snapshot

	refreshMu sync.Mutex
	cron      *cron.Cron
}

func NewRefresher(source dataset.Source, trainer ml.Trainer, modelName string, metrics *Metrics, logger *logrus.Entry) *Refresher {
	return &Refresher{
		source:    source,
		trainer:   trainer,
		modelName: modelName,
		minRows:   backtest.DefaultMinTrainRows,
		metrics:   metrics,
		logger:    logger,
	}
}

func (r *Refresher) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Refresh builds and publishes a new snapshot. The previous snapshot stays
// in place when it fails.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := time.Now()
	ds, err := r.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	latest := ds.Latest()
	if latest < 0 {
		return nil, fmt.Errorf("%w: dataset is empty", ErrNoPredictions)
	}

	train := ds.Before(latest)
	current := ds.Round(latest)
	key := ds.Rounds()[latest]

	source := r.modelName
	var scores []float64
	if len(train) < r.minRows {
		r.logger.WithFields(logrus.Fields{
			"train_rows": len(train),
			"min_rows":   r.minRows,
		}).Warn("Not enough history to train, scoring with trailing means")
		source = ScoreSourceBaseline
		scores = make([]float64, len(current))
		for i := range current {
			scores[i] = current[i].Mean5
		}
	} else {
		scores, err = ml.FitPredict(ctx, r.trainer, ds.Matrix(train), dataset.Targets(train), ds.Matrix(current))
		if err != nil {
			return nil, fmt.Errorf("failed to score round %s: %w", key, err)
		}
	}

	snap := &Snapshot{
		Version:     uuid.NewString(),
		Round:       key,
		ScoreSource: source,
		Candidates:  backtest.Candidates(current, scores),
		Dataset:     ds,
		TrainRows:   len(train),
		GeneratedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.PredictedRound.Set(float64(key.Round))
	}
	r.logger.WithFields(logrus.Fields{
		"round":        key.String(),
		"score_source": source,
		"candidates":   len(current),
		"train_rows":   len(train),
		"duration":     time.Since(start).String(),
	}).Info("Prediction snapshot refreshed")

	return snap, nil
}

// Start schedules Refresh every interval until Stop.
func (r *Refresher) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.WithError(err).Error("Scheduled prediction refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	r.cron = c
	c.Start()
	r.logger.WithField("interval", interval.String()).Info("Prediction refresher started")
	return nil
}

func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("Prediction refresher stopped")
}
