package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

// ErrDuplicateRecord is returned when two records share (player, season, round).
var ErrDuplicateRecord = errors.New("duplicate player round")

// Source produces a dataset from some storage.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Feature is one column of the model's input.
type Feature struct {
	Name  string
	Value func(*models.PlayerRound) float64
}

var baseFeatures = []Feature{
	{"mean_5", func(r *models.PlayerRound) float64 { return r.Mean5 }},
	{"std_5", func(r *models.PlayerRound) float64 { return r.Std5 }},
	{"price", func(r *models.PlayerRound) float64 { return r.Price }},
}

// scoutFeatures are used only when the dataset actually carries the scout.
var scoutFeatures = []struct {
	Feature
	raw func(*models.PlayerRound) float64
}{
	{Feature{"goals_mean_5", func(r *models.PlayerRound) float64 { return r.GoalsMean5 }}, func(r *models.PlayerRound) float64 { return r.Goals }},
	{Feature{"assists_mean_5", func(r *models.PlayerRound) float64 { return r.AssistsMean5 }}, func(r *models.PlayerRound) float64 { return r.Assists }},
	{Feature{"clean_sheet_mean_5", func(r *models.PlayerRound) float64 { return r.CleanSheetMean5 }}, func(r *models.PlayerRound) float64 { return r.CleanSheets }},
	{Feature{"tackles_mean_5", func(r *models.PlayerRound) float64 { return r.TacklesMean5 }}, func(r *models.PlayerRound) float64 { return r.Tackles }},
	{Feature{"shots_wide_mean_5", func(r *models.PlayerRound) float64 { return r.ShotsWideMean5 }}, func(r *models.PlayerRound) float64 { return r.ShotsWide }},
	{Feature{"fouls_suffered_mean_5", func(r *models.PlayerRound) float64 { return r.FoulsSufferedMean5 }}, func(r *models.PlayerRound) float64 { return r.FoulsSuffered }},
}

// Dataset is an immutable, chronologically ordered set of player rounds.
// It is safe for concurrent readers.
type Dataset struct {
	records  []models.PlayerRound
	rounds   []models.RoundKey
	offsets  []int // offsets[i] is the first record of rounds[i]; offsets[len(rounds)] == len(records)
	features []Feature
}

// New copies and sorts the records, indexes their rounds and picks the
// feature columns. Records must already carry their trailing features.
func New(records []models.PlayerRound) (*Dataset, error) {
	recs := append([]models.PlayerRound(nil), records...)
	sortRecords(recs)

	d := &Dataset{records: recs}
	for i := range recs {
		key := recs[i].Key()
		if i > 0 && recs[i-1].Key() == key {
			if recs[i-1].PlayerID == recs[i].PlayerID {
				return nil, fmt.Errorf("%w: player %d in %s", ErrDuplicateRecord, recs[i].PlayerID, key)
			}
			continue
		}
		d.rounds = append(d.rounds, key)
		d.offsets = append(d.offsets, i)
	}
	d.offsets = append(d.offsets, len(recs))

	d.features = append(d.features, baseFeatures...)
	for _, sf := range scoutFeatures {
		if d.carries(sf.raw, sf.Value) {
			d.features = append(d.features, sf.Feature)
		}
	}
	return d, nil
}

func (d *Dataset) carries(fields ...func(*models.PlayerRound) float64) bool {
	for i := range d.records {
		for _, f := range fields {
			if f(&d.records[i]) != 0 {
				return true
			}
		}
	}
	return false
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Rounds returns the distinct (season, round) keys in ascending order.
func (d *Dataset) Rounds() []models.RoundKey {
	return append([]models.RoundKey(nil), d.rounds...)
}

// Round returns the records of the i-th round. The slice must not be
// modified.
func (d *Dataset) Round(i int) []models.PlayerRound {
	return d.records[d.offsets[i]:d.offsets[i+1]]
}

// Before returns every record strictly earlier than the i-th round. The
// slice must not be modified.
func (d *Dataset) Before(i int) []models.PlayerRound {
	return d.records[:d.offsets[i]]
}

// Latest returns the index of the most recent round, or -1 when empty.
func (d *Dataset) Latest() int {
	return len(d.rounds) - 1
}

// FeatureNames lists the model input columns in order.
func (d *Dataset) FeatureNames() []string {
	names := make([]string, len(d.features))
	for i, f := range d.features {
		names[i] = f.Name
	}
	return names
}

// Matrix builds the feature matrix for rows. Non-finite values become 0.
func (d *Dataset) Matrix(rows []models.PlayerRound) [][]float64 {
	X := make([][]float64, len(rows))
	for i := range rows {
		x := make([]float64, len(d.features))
		for j, f := range d.features {
			v := f.Value(&rows[i])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			x[j] = v
		}
		X[i] = x
	}
	return X
}

// Targets returns the realized points of rows.
func Targets(rows []models.PlayerRound) []float64 {
	y := make([]float64, len(rows))
	for i := range rows {
		y[i] = rows[i].Points
	}
	return y
}
