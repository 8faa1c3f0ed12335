package backtest

import (
	"math"

	"github.com/montanaflynn/stats"
)

// summarize fills the aggregate metrics from the evaluated series. An empty
// series leaves every metric at 0.
func summarize(s *Summary) {
	n := len(s.Series)
	s.RoundsEvaluated = n
	if n == 0 {
		return
	}

	realized := make(stats.Float64Data, n)
	predicted := make(stats.Float64Data, n)
	absErr := make(stats.Float64Data, n)
	sqErr := make(stats.Float64Data, n)
	hits := make(stats.Float64Data, n)
	uplift := make(stats.Float64Data, n)
	for i, r := range s.Series {
		realized[i] = r.Realized
		predicted[i] = r.Predicted
		d := r.Realized - r.Predicted
		absErr[i] = math.Abs(d)
		sqErr[i] = d * d
		hits[i] = r.TopKHitRate
		uplift[i] = r.Realized - r.BaselineRealized
	}

	s.MAE = finite(absErr.Mean())
	mse, _ := sqErr.Mean()
	s.RMSE = finite(math.Sqrt(mse), nil)
	s.TopKHitRateMean = finite(hits.Mean())
	s.MeanUplift = finite(uplift.Mean())

	if n >= 2 {
		s.Correlation = finite(stats.Correlation(realized, predicted))
	}
}

// finite maps errors and non-finite values to 0.
func finite(v float64, err error) float64 {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
