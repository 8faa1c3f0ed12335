package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
)

var (
	btBudget         float64
	btFormation      string
	btTopK           int
	btMinTrainRounds int
	btWorkers        int
	btSeriesCSV      string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay history round by round",
	Long: `Walk forward through every stored round: train on the rounds before it,
pick a squad from the predictions and score it with the realized points, next
to a baseline squad picked on trailing five-round means.

Examples:
  cartola backtest
  cartola backtest --budget 140 --formation 4-4-2 --top-k 30
  cartola backtest --min-train-rounds 8 --workers 4 --series-csv out/series.csv`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	defaults := backtest.DefaultConfig()
	backtestCmd.Flags().Float64Var(&btBudget, "budget", defaults.Budget, "Budget in cartoletas")
	backtestCmd.Flags().StringVar(&btFormation, "formation", defaults.Formation, "Formation key")
	backtestCmd.Flags().IntVar(&btTopK, "top-k", defaults.TopK, "Players compared by the top-k hit rate (min 5)")
	backtestCmd.Flags().IntVar(&btMinTrainRounds, "min-train-rounds", defaults.MinTrainRounds, "Warm-up rounds before the first evaluation")
	backtestCmd.Flags().IntVar(&btWorkers, "workers", 0, "Rounds evaluated in parallel (defaults to BACKTEST_WORKERS)")
	backtestCmd.Flags().StringVar(&btSeriesCSV, "series-csv", "", "Write the per-round series to this CSV file")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.closeFn()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := backtest.DefaultConfig()
	cfg.Budget = btBudget
	cfg.Formation = btFormation
	cfg.TopK = btTopK
	cfg.MinTrainRounds = btMinTrainRounds
	cfg.Workers = e.cfg.BacktestWorkers
	if btWorkers > 0 {
		cfg.Workers = btWorkers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ds, err := e.load(ctx)
	if err != nil {
		return err
	}

	log := e.log.WithField("component", "backtest")
	engine := backtest.NewEngine(e.trainer, e.optimizer,
		backtest.WithEngineLogger(log),
		backtest.WithProgress(func(p backtest.Progress) {
			log.WithFields(logrus.Fields{
				"season": p.Season,
				"round":  p.Round,
				"status": p.Status,
			}).Infof("Round %d/%d", p.Index+1, p.Total)
		}),
	)

	summary, err := engine.Run(ctx, ds, cfg)
	if err != nil {
		return err
	}
	summary = summary.Rounded()

	if btSeriesCSV != "" {
		if err := writeSeries(btSeriesCSV, summary.Series); err != nil {
			return err
		}
		log.WithField("path", btSeriesCSV).Info("Series written")
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

func writeSeries(path string, series []backtest.RoundResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create series directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create series file: %w", err)
	}
	if err := backtest.WriteSeriesCSV(f, series); err != nil {
		f.Close()
		return fmt.Errorf("write series: %w", err)
	}
	return f.Close()
}
