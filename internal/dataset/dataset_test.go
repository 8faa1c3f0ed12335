package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

const rawExport = `,atletas.atleta_id,atletas.nome,atletas.apelido,atletas.clube_id,atletas.clube.id.full.name,atletas.posicao_id,atletas.preco_num,atletas.pontos_num,G,A,SG,DS
0,101,Fulano de Tal,Fulano,262,Flamengo,5,12.5,8.3,1,,0,1
1,102,Beltrano Silva,Beltrano,275,Palmeiras,1,6.0,4.0,0,0,1,
2,103,Ciclano Souza,,264,Corinthians,4,9.1,-1.2,,,,
`

func TestParseRound_NormalisesColumns(t *testing.T) {
	rows, err := ParseRound(strings.NewReader(rawExport), 2023, 7)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, 101, first.PlayerID)
	assert.Equal(t, 2023, first.Season)
	assert.Equal(t, 7, first.Round)
	assert.Equal(t, models.Forward, first.Position)
	assert.Equal(t, 12.5, first.Price)
	assert.Equal(t, 8.3, first.Points)
	assert.Equal(t, "Fulano", first.DisplayName())
	assert.Equal(t, "Flamengo", first.ClubName)
	assert.Equal(t, 262, first.ClubID)
	assert.Equal(t, 1.0, first.Goals)
	assert.Equal(t, 0.0, first.Assists)
	assert.Equal(t, 1.0, first.Tackles)

	assert.Equal(t, models.Goalkeeper, rows[1].Position)
	assert.Equal(t, 1.0, rows[1].CleanSheets)
	assert.Equal(t, "Ciclano Souza", rows[2].DisplayName())
}

func TestParseRound_AcceptsNormalisedHeaders(t *testing.T) {
	csv := "atleta_id,posicao_id,preco,pontos\n7,3,5.5,2\n"
	rows, err := ParseRound(strings.NewReader(csv), 2024, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.CenterBack, rows[0].Position)
}

func TestParseRound_MissingColumn(t *testing.T) {
	csv := "atleta_id,posicao_id,pontos\n7,3,2\n"
	_, err := ParseRound(strings.NewReader(csv), 2024, 1)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseRound_BadPosition(t *testing.T) {
	csv := "atleta_id,posicao_id,preco,pontos\n7,9,5.5,2\n"
	_, err := ParseRound(strings.NewReader(csv), 2024, 1)
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestLoadRawDir_DiscoversSeasonsAndRounds(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, body string) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	header := "atleta_id,posicao_id,preco,pontos\n"
	write("2022/rodada-38.csv", header+"1,1,5,3\n")
	write("2023/rodada-1.csv", header+"1,1,5,4\n2,2,4,1\n")
	write("2023/rodada-2.csv", header+"1,1,5,6\n")
	write("2023/notes.txt", "ignored")
	write("scratch/rodada-1.csv", header+"9,1,5,3\n")

	ds, err := DirSource{Dir: dir}.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.RoundKey{{Season: 2022, Round: 38}, {Season: 2023, Round: 1}, {Season: 2023, Round: 2}}, ds.Rounds())
	assert.Equal(t, 4, ds.Len())
	assert.Len(t, ds.Round(1), 2)
	assert.Len(t, ds.Before(2), 3)

	// Player 1's history crosses the season boundary.
	last := ds.Round(2)[0]
	assert.Equal(t, 3.5, last.Mean5)
}

func TestBuildFeatures_UsesOnlyPreviousAppearances(t *testing.T) {
	var records []models.PlayerRound
	points := []float64{2, 4, 6, 8, 10, 12, 14}
	for i, p := range points {
		records = append(records, models.PlayerRound{
			PlayerID: 1, Season: 2023, Round: i + 1, Position: models.Midfielder, Points: p, Goals: float64(i % 2),
		})
	}

	BuildFeatures(records)

	assert.Equal(t, 0.0, records[0].Mean5, "no history")
	assert.Equal(t, 0.0, records[0].Std5)
	assert.Equal(t, 2.0, records[1].Mean5)
	assert.Equal(t, 0.0, records[1].Std5, "std needs two observations")
	assert.Equal(t, 3.0, records[2].Mean5)
	assert.InDelta(t, 1.41421356, records[2].Std5, 1e-6)

	// Round 7 sees rounds 2..6 only: 4, 6, 8, 10, 12
	assert.Equal(t, 8.0, records[6].Mean5)
	assert.InDelta(t, 3.16227766, records[6].Std5, 1e-6)
	assert.InDelta(t, 0.6, records[6].GoalsMean5, 1e-12)
}

func TestNew_RejectsDuplicates(t *testing.T) {
	rec := models.PlayerRound{PlayerID: 1, Season: 2023, Round: 1, Position: models.Forward}
	_, err := New([]models.PlayerRound{rec, rec})
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestDataset_FeatureColumns(t *testing.T) {
	records := []models.PlayerRound{
		{PlayerID: 1, Season: 2023, Round: 1, Position: models.Forward, Price: 10, Goals: 1},
		{PlayerID: 1, Season: 2023, Round: 2, Position: models.Forward, Price: 11},
	}
	BuildFeatures(records)
	ds, err := New(records)
	require.NoError(t, err)

	assert.Equal(t, []string{"mean_5", "std_5", "price", "goals_mean_5"}, ds.FeatureNames())

	X := ds.Matrix(ds.Round(1))
	require.Len(t, X, 1)
	assert.Equal(t, []float64{0, 0, 11, 1}, X[0])
	assert.Equal(t, []float64{0}, Targets(ds.Round(1)))
}
