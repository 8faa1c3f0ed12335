package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

// ErrMissingColumn is returned when a raw export lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// ErrMalformedRow is returned for rows whose values cannot be parsed.
var ErrMalformedRow = errors.New("malformed row")

var roundFilePattern = regexp.MustCompile(`^rodada-(\d+)\.csv$`)

// columnAliases maps raw Cartola export headers to canonical names.
var columnAliases = map[string]string{
	"atletas.atleta_id":          "atleta_id",
	"atletas.nome":               "nome",
	"atletas.apelido":            "apelido",
	"atletas.clube_id":           "clube_id",
	"atletas.clube.id.full.name": "clube_nome",
	"atletas.posicao_id":         "posicao_id",
	"atletas.preco_num":          "preco",
	"atletas.pontos_num":         "pontos",
}

var requiredColumns = []string{"atleta_id", "pontos", "preco", "posicao_id"}

// DirSource loads every <dir>/<season>/rodada-<n>.csv file.
type DirSource struct {
	Dir string
}

func (s DirSource) Load(ctx context.Context) (*Dataset, error) {
	records, err := LoadRawDir(ctx, s.Dir)
	if err != nil {
		return nil, err
	}
	BuildFeatures(records)
	return New(records)
}

// LoadRawDir reads raw round exports. Directories whose name is not a season
// number and files not named rodada-<n>.csv are ignored.
func LoadRawDir(ctx context.Context, dir string) ([]models.PlayerRound, error) {
	log := logger.WithService("dataset")

	seasons, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raw data dir: %w", err)
	}

	var records []models.PlayerRound
	files := 0
	for _, entry := range seasons {
		if !entry.IsDir() {
			continue
		}
		season, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		seasonDir := filepath.Join(dir, entry.Name())
		rounds, err := os.ReadDir(seasonDir)
		if err != nil {
			return nil, fmt.Errorf("read season dir %s: %w", seasonDir, err)
		}
		for _, f := range rounds {
			m := roundFilePattern.FindStringSubmatch(f.Name())
			if f.IsDir() || m == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			round, _ := strconv.Atoi(m[1])
			rows, err := loadRoundFile(filepath.Join(seasonDir, f.Name()), season, round)
			if err != nil {
				return nil, err
			}
			records = append(records, rows...)
			files++
		}
	}

	log.WithFields(logrus.Fields{
		"dir":     dir,
		"files":   files,
		"records": len(records),
	}).Info("Loaded raw round files")

	return records, nil
}

func loadRoundFile(path string, season, round int) ([]models.PlayerRound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ParseRound(f, season, round)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ParseRound parses one raw round export.
func ParseRound(r io.Reader, season, round int) ([]models.PlayerRound, error) {
	raw, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	for _, col := range requiredColumns {
		if _, ok := normalizeRow(raw[0])[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	out := make([]models.PlayerRound, 0, len(raw))
	for i, m := range raw {
		row := normalizeRow(m)
		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, i+2, err)
		}
		rec.Season = season
		rec.Round = round
		out = append(out, rec)
	}
	return out, nil
}

func normalizeRow(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		key := strings.TrimSpace(k)
		if alias, ok := columnAliases[key]; ok {
			key = alias
		}
		out[key] = strings.TrimSpace(v)
	}
	return out
}

func parseRecord(row map[string]string) (models.PlayerRound, error) {
	var rec models.PlayerRound
	var err error

	id, err := parseFloat(row["atleta_id"])
	if err != nil {
		return rec, fmt.Errorf("atleta_id: %w", err)
	}
	rec.PlayerID = int(id)

	pos := row["posicao_id"]
	if v, ferr := strconv.ParseFloat(pos, 64); ferr == nil {
		pos = strconv.Itoa(int(v))
	}
	if rec.Position, err = models.ParsePosition(pos); err != nil {
		return rec, err
	}
	if rec.Price, err = parseFloat(row["preco"]); err != nil {
		return rec, fmt.Errorf("preco: %w", err)
	}
	if rec.Points, err = parseFloat(row["pontos"]); err != nil {
		return rec, fmt.Errorf("pontos: %w", err)
	}

	rec.Name = row["nome"]
	rec.Nickname = row["apelido"]
	rec.ClubName = row["clube_nome"]
	if club, cerr := parseFloat(row["clube_id"]); cerr == nil {
		rec.ClubID = int(club)
	}

	scouts := []struct {
		col string
		dst *float64
	}{
		{"G", &rec.Goals},
		{"A", &rec.Assists},
		{"SG", &rec.CleanSheets},
		{"DS", &rec.Tackles},
		{"FF", &rec.ShotsWide},
		{"FS", &rec.FoulsSuffered},
	}
	for _, s := range scouts {
		v, serr := parseFloat(row[s.col])
		if serr != nil {
			return rec, fmt.Errorf("%s: %w", s.col, serr)
		}
		*s.dst = v
	}
	return rec, nil
}

// parseFloat treats blanks and NaN as 0, as the exports leave absent scouts
// empty.
func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// sortRecords orders records by (season, round, player id).
func sortRecords(records []models.PlayerRound) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.PlayerID < b.PlayerID
	})
}
