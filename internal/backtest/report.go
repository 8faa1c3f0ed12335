package backtest

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// Rounded returns a copy for presentation: point totals to 2 places, hit
// rates to 4, error metrics to 3.
func (s *Summary) Rounded() *Summary {
	out := *s
	out.MAE = round(s.MAE, 3)
	out.RMSE = round(s.RMSE, 3)
	out.Correlation = round(s.Correlation, 3)
	out.MeanUplift = round(s.MeanUplift, 3)
	out.TopKHitRateMean = round(s.TopKHitRateMean, 4)

	out.Series = make([]RoundResult, len(s.Series))
	for i, r := range s.Series {
		r.Realized = round(r.Realized, 2)
		r.Predicted = round(r.Predicted, 2)
		r.BaselineRealized = round(r.BaselineRealized, 2)
		r.BaselinePredicted = round(r.BaselinePredicted, 2)
		r.LuxuryDelta = round(r.LuxuryDelta, 2)
		r.BaselineLuxuryDelta = round(r.BaselineLuxuryDelta, 2)
		r.TopKHitRate = round(r.TopKHitRate, 4)
		out.Series[i] = r
	}
	return &out
}

// WriteSeriesCSV writes one row per evaluated round.
func WriteSeriesCSV(w io.Writer, series []RoundResult) error {
	return gocsv.Marshal(&series, w)
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(sanitize(v)).Round(places).Float64()
	return f
}
