package ml

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/cartola-optimizer/pkg/config"
)

func linearData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		a, b := rng.Float64()*10, rng.Float64()*5
		X[i] = []float64{a, b, 7} // constant column
		y[i] = 3 + 2*a - b + rng.NormFloat64()*0.01
	}
	return X, y
}

func TestRidge_RecoversLinearRelationship(t *testing.T) {
	X, y := linearData(300, 1)

	model, err := (&RidgeTrainer{Lambda: 1e-6}).Fit(context.Background(), X, y)
	require.NoError(t, err)

	preds, err := model.Predict([][]float64{{1, 1, 7}, {5, 2, 7}})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, preds[0], 0.05)
	assert.InDelta(t, 11.0, preds[1], 0.05)
}

func TestRidge_ShrinksTowardsMean(t *testing.T) {
	X, y := linearData(100, 2)

	loose, err := (&RidgeTrainer{Lambda: 0.001}).Fit(context.Background(), X, y)
	require.NoError(t, err)
	tight, err := (&RidgeTrainer{Lambda: 1e6}).Fit(context.Background(), X, y)
	require.NoError(t, err)

	inputs := [][]float64{{10, 0, 7}}
	pl, _ := loose.Predict(inputs)
	pt, _ := tight.Predict(inputs)
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	assert.Less(t, math.Abs(pt[0]-mean), math.Abs(pl[0]-mean))
}

func stepData(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x := float64(i) / float64(n)
		X[i] = []float64{x}
		if x > 0.5 {
			y[i] = 10
		}
	}
	return X, y
}

func TestForest_LearnsStepFunction(t *testing.T) {
	X, y := stepData(200)
	trainer := &ForestTrainer{Trees: 20, MaxDepth: 4, MinLeaf: 2, Jobs: 2, Seed: 42}

	model, err := trainer.Fit(context.Background(), X, y)
	require.NoError(t, err)

	preds, err := model.Predict([][]float64{{0.1}, {0.9}})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, preds[0], 0.5)
	assert.InDelta(t, 10.0, preds[1], 0.5)
}

func TestForest_DeterministicAcrossJobCounts(t *testing.T) {
	X, y := linearData(150, 3)
	base := &ForestTrainer{Trees: 12, MaxDepth: 6, MinLeaf: 3, MaxSamples: 100, Seed: 7}
	inputs := [][]float64{{1, 1, 7}, {9, 4, 7}, {4.5, 2.5, 7}}

	m1, err := LimitJobs(base, 1).Fit(context.Background(), X, y)
	require.NoError(t, err)
	m4, err := LimitJobs(base, 4).Fit(context.Background(), X, y)
	require.NoError(t, err)

	p1, err := m1.Predict(inputs)
	require.NoError(t, err)
	p4, err := m4.Predict(inputs)
	require.NoError(t, err)
	assert.Equal(t, p1, p4)
}

func TestForest_HonoursCancellation(t *testing.T) {
	X, y := stepData(50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&ForestTrainer{Trees: 5, Jobs: 1}).Fit(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainers_RejectBadInput(t *testing.T) {
	trainers := []Trainer{&RidgeTrainer{Lambda: 1}, &ForestTrainer{Trees: 2}}
	for _, tr := range trainers {
		_, err := tr.Fit(context.Background(), nil, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = tr.Fit(context.Background(), [][]float64{{1}, {2}}, []float64{1})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = tr.Fit(context.Background(), [][]float64{{1, 2}, {2}}, []float64{1, 2})
		assert.ErrorIs(t, err, ErrInvalidInput)
	}

	model, err := (&RidgeTrainer{Lambda: 1}).Fit(context.Background(), [][]float64{{1}, {2}, {3}}, []float64{1, 2, 3})
	require.NoError(t, err)
	_, err = model.Predict([][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

type nanModel struct{}

func (nanModel) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	out[0] = math.NaN()
	if len(out) > 1 {
		out[1] = math.Inf(1)
	}
	return out, nil
}

type nanTrainer struct{}

func (nanTrainer) Fit(context.Context, [][]float64, []float64) (Model, error) {
	return nanModel{}, nil
}

func TestFitPredict_SanitisesNonFinite(t *testing.T) {
	preds, err := FitPredict(context.Background(), nanTrainer{}, [][]float64{{1}}, []float64{1}, [][]float64{{1}, {2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, preds)
}

func TestNewTrainer(t *testing.T) {
	tr, err := NewTrainer(&config.Config{ModelType: "ridge", RidgeLambda: 2})
	require.NoError(t, err)
	assert.Equal(t, &RidgeTrainer{Lambda: 2}, tr)

	tr, err = NewTrainer(&config.Config{ModelType: "random_forest", ForestTrees: 300, ModelSeed: 42})
	require.NoError(t, err)
	forest, ok := tr.(*ForestTrainer)
	require.True(t, ok)
	assert.Equal(t, 300, forest.Trees)
	assert.Equal(t, int64(42), forest.Seed)

	_, err = NewTrainer(&config.Config{ModelType: "svm"})
	assert.Error(t, err)
}
