package ml

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RidgeTrainer fits an L2-regularised linear model on standardised features.
// The intercept is not penalised.
type RidgeTrainer struct {
	Lambda float64
}

type ridgeModel struct {
	means     []float64
	scales    []float64
	coef      []float64
	intercept float64
}

func (t *RidgeTrainer) Fit(ctx context.Context, X [][]float64, y []float64) (Model, error) {
	p, err := checkTrainingData(X, y)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(X)

	m := &ridgeModel{
		means:     make([]float64, p),
		scales:    make([]float64, p),
		intercept: stat.Mean(y, nil),
	}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || n < 2 {
			std = 1
		}
		m.means[j], m.scales[j] = mean, std
	}

	Z := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			Z.Set(i, j, (v-m.means[j])/m.scales[j])
		}
		yc.SetVec(i, y[i]-m.intercept)
	}

	var gram mat.Dense
	gram.Mul(Z.T(), Z)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+t.Lambda)
	}
	var rhs mat.VecDense
	rhs.MulVec(Z.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return nil, fmt.Errorf("ridge solve: %w", err)
	}
	m.coef = make([]float64, p)
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j)
	}
	return m, nil
}

func (m *ridgeModel) Predict(X [][]float64) ([]float64, error) {
	if _, err := checkMatrix(X, len(m.coef)); err != nil && len(X) > 0 {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.intercept
		for j, x := range row {
			v += m.coef[j] * (x - m.means[j]) / m.scales[j]
		}
		out[i] = v
	}
	return out, nil
}
