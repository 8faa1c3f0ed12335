package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/internal/services"
)

var (
	squadBudget    float64
	squadFormation string
)

var squadCmd = &cobra.Command{
	Use:   "squad",
	Short: "Pick the best squad for the latest round",
	Long: `Train on every round before the latest one, predict the latest round and
print the optimal starters, bench, captain and luxury reserve as JSON.

Examples:
  cartola squad --budget 100
  cartola squad --budget 140 --formation 3-5-2 --model ridge`,
	RunE: runSquad,
}

func init() {
	rootCmd.AddCommand(squadCmd)

	squadCmd.Flags().Float64Var(&squadBudget, "budget", 100, "Budget in cartoletas")
	squadCmd.Flags().StringVar(&squadFormation, "formation", models.DefaultFormation, "Formation key")
}

func runSquad(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.closeFn()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	refresher := services.NewRefresher(e.source, e.trainer, e.cfg.ModelType, nil, e.log.WithField("component", "refresher"))
	if _, err := refresher.Refresh(ctx); err != nil {
		return err
	}

	squads := services.NewSquadService(refresher, e.optimizer, services.NewCacheService(nil), 0, nil, e.log.WithField("component", "squads"))
	resp, _, err := squads.GenerateSquad(ctx, squadBudget, squadFormation)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
