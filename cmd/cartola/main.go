package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/ml"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/internal/repository"
	"github.com/stitts-dev/cartola-optimizer/pkg/config"
	"github.com/stitts-dev/cartola-optimizer/pkg/database"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

// Global flags
var (
	dataDir   string
	modelType string
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "cartola",
	Short: "Cartola FC squad optimizer and walk-forward backtester",
	Long: `Pick a budget-constrained Cartola squad for the latest round, or replay
history round by round to measure how the model's squads would have scored.

Examples:
  cartola squad --budget 120 --formation 4-4-2
  cartola backtest --top-k 20 --min-train-rounds 5 --series-csv out/series.csv`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Raw round exports directory (defaults to RAW_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&modelType, "model", "", "Model type: random_forest or ridge (defaults to MODEL_TYPE)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress log output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs: config, logger, data and model.
type env struct {
	cfg       *config.Config
	log       *logrus.Logger
	source    dataset.Source
	trainer   ml.Trainer
	optimizer *optimizer.SquadOptimizer
	closeFn   func()
}

func setup() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.RawDataDir = dataDir
		cfg.DatasetSource = "csv"
	}
	if modelType != "" {
		cfg.ModelType = modelType
	}

	// stdout carries the JSON result, logs go to stderr.
	log := logger.InitLogger("", cfg.IsDevelopment())
	log.SetOutput(os.Stderr)
	if quiet {
		log.SetOutput(io.Discard)
	}

	trainer, err := ml.NewTrainer(cfg)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:     cfg,
		log:     log,
		source:  dataset.DirSource{Dir: cfg.RawDataDir},
		trainer: trainer,
		optimizer: optimizer.NewSquadOptimizer(cfg.SolverMaxNodes,
			optimizer.WithLogger(log.WithField("component", "optimizer"))),
		closeFn: func() {},
	}

	if cfg.DatasetSource == "database" {
		db, err := database.NewConnection(cfg.DatabaseURL, false)
		if err != nil {
			return nil, err
		}
		e.source = repository.NewPlayerRoundRepository(db.DB, log.WithField("component", "repository"))
		e.closeFn = func() { _ = db.Close() }
	}
	return e, nil
}

func (e *env) load(ctx context.Context) (*dataset.Dataset, error) {
	ds, err := e.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("no player rounds found")
	}
	return ds, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
