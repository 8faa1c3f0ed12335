package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/repository"
	"github.com/stitts-dev/cartola-optimizer/pkg/config"
	"github.com/stitts-dev/cartola-optimizer/pkg/database"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [up|down|import <raw dir>]")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.InitLogger("", cfg.IsDevelopment())

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := repository.NewPlayerRoundRepository(db.DB, log.WithField("component", "migrate"))
	ctx := context.Background()

	command := os.Args[1]

	switch command {
	case "up":
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Info("Migrations completed successfully")

	case "down":
		if err := repo.Drop(ctx); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Info("Tables dropped successfully")

	case "import":
		dir := cfg.RawDataDir
		if len(os.Args) > 2 {
			dir = os.Args[2]
		}
		if err := importDir(ctx, repo, dir, log); err != nil {
			log.Fatalf("Failed to import %s: %v", dir, err)
		}

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

// importDir loads the raw round exports under dir and upserts them, so
// re-importing a corrected export replaces the stored rows.
func importDir(ctx context.Context, repo *repository.PlayerRoundRepository, dir string, log *logrus.Logger) error {
	start := time.Now()

	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	records, err := dataset.LoadRawDir(ctx, dir)
	if err != nil {
		return err
	}
	dataset.BuildFeatures(records)
	if err := repo.Upsert(ctx, records); err != nil {
		return err
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"dir":      dir,
		"imported": len(records),
		"stored":   total,
		"elapsed":  time.Since(start).String(),
	}).Info("Import completed")
	return nil
}
