package dataset

import (
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

// Window is the number of previous appearances the trailing features cover.
const Window = 5

// BuildFeatures fills Mean5, Std5 and the scout means of every record from
// the same player's previous appearances only. The current round never
// contributes to its own features. Records are re-sorted by (season, round,
// player id).
func BuildFeatures(records []models.PlayerRound) {
	sortRecords(records)

	history := make(map[int][]int)
	for i := range records {
		rec := &records[i]
		prev := history[rec.PlayerID]
		if len(prev) > Window {
			prev = prev[len(prev)-Window:]
		}

		points := make([]float64, len(prev))
		for k, j := range prev {
			points[k] = records[j].Points
		}
		rec.Mean5 = mean(points)
		rec.Std5 = 0
		if len(points) >= 2 {
			rec.Std5 = stat.StdDev(points, nil)
		}

		rec.GoalsMean5 = trailingMean(records, prev, func(r *models.PlayerRound) float64 { return r.Goals })
		rec.AssistsMean5 = trailingMean(records, prev, func(r *models.PlayerRound) float64 { return r.Assists })
		rec.CleanSheetMean5 = trailingMean(records, prev, func(r *models.PlayerRound) float64 { return r.CleanSheets })
		rec.TacklesMean5 = trailingMean(records, prev, func(r *models.PlayerRound) float64 { return r.Tackles })
		rec.ShotsWideMean5 = trailingMean(records, prev, func(r *models.PlayerRound) float64 { return r.ShotsWide })
		rec.FoulsSufferedMean5 = trailingMean(records, prev, func(r *models.PlayerRound) float64 { return r.FoulsSuffered })

		history[rec.PlayerID] = append(prev, i)
	}
}

func trailingMean(records []models.PlayerRound, idx []int, field func(*models.PlayerRound) float64) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, j := range idx {
		sum += field(&records[j])
	}
	return sum / float64(len(idx))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
