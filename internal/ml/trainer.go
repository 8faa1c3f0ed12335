package ml

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/stitts-dev/cartola-optimizer/pkg/config"
)

// ErrInvalidInput is returned for empty, ragged or mismatched training data.
var ErrInvalidInput = errors.New("invalid training input")

// Model predicts one score per feature row.
type Model interface {
	Predict(X [][]float64) ([]float64, error)
}

// Trainer fits a Model on a feature matrix and its targets.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []float64) (Model, error)
}

// JobLimiter is implemented by trainers with internal parallelism. The
// backtest caps it to 1 when it parallelises rounds itself.
type JobLimiter interface {
	WithJobs(n int) Trainer
}

// LimitJobs returns t capped to n workers when it supports it, otherwise t.
func LimitJobs(t Trainer, n int) Trainer {
	if l, ok := t.(JobLimiter); ok {
		return l.WithJobs(n)
	}
	return t
}

// NewTrainer builds the trainer selected by MODEL_TYPE.
func NewTrainer(cfg *config.Config) (Trainer, error) {
	switch cfg.ModelType {
	case "random_forest", "":
		return &ForestTrainer{
			Trees:      cfg.ForestTrees,
			MaxDepth:   cfg.ForestMaxDepth,
			MinLeaf:    cfg.ForestMinLeaf,
			MaxSamples: cfg.ForestSamples,
			Jobs:       cfg.ForestJobs,
			Seed:       cfg.ModelSeed,
		}, nil
	case "ridge":
		return &RidgeTrainer{Lambda: cfg.RidgeLambda}, nil
	default:
		return nil, fmt.Errorf("unknown model type %q", cfg.ModelType)
	}
}

// FitPredict fits on the training rows and predicts the test rows, replacing
// non-finite predictions with 0.
func FitPredict(ctx context.Context, t Trainer, X [][]float64, y []float64, test [][]float64) ([]float64, error) {
	model, err := t.Fit(ctx, X, y)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	preds, err := model.Predict(test)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	for i, v := range preds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			preds[i] = 0
		}
	}
	return preds, nil
}

func checkTrainingData(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no training rows", ErrInvalidInput)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows but %d targets", ErrInvalidInput, len(X), len(y))
	}
	width, err := checkMatrix(X, -1)
	if err != nil {
		return 0, err
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: target %d is not finite", ErrInvalidInput, i)
		}
	}
	return width, nil
}

// checkMatrix verifies every row has the same width (or want, if >= 0).
func checkMatrix(X [][]float64, want int) (int, error) {
	width := want
	for i, row := range X {
		if width < 0 {
			width = len(row)
		}
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), width)
		}
	}
	if width == 0 {
		return 0, fmt.Errorf("%w: no features", ErrInvalidInput)
	}
	return width, nil
}
