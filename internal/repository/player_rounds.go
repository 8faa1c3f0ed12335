package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
)

const batchSize = 500

// PlayerRoundRepository stores player rounds and serves them back as a
// dataset.
type PlayerRoundRepository struct {
	db     *gorm.DB
	logger *logrus.Entry
}

func NewPlayerRoundRepository(db *gorm.DB, logger *logrus.Entry) *PlayerRoundRepository {
	return &PlayerRoundRepository{db: db, logger: logger}
}

// Migrate creates or updates the player_rounds table.
func (r *PlayerRoundRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.PlayerRound{}); err != nil {
		return fmt.Errorf("failed to migrate player_rounds: %w", err)
	}
	return nil
}

// Drop removes the player_rounds table.
func (r *PlayerRoundRepository) Drop(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Migrator().DropTable(&models.PlayerRound{}); err != nil {
		return fmt.Errorf("failed to drop player_rounds: %w", err)
	}
	return nil
}

// Upsert inserts records, replacing rows that share (player, season, round).
func (r *PlayerRoundRepository) Upsert(ctx context.Context, records []models.PlayerRound) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]models.PlayerRound, len(records))
	copy(rows, records)
	for i := range rows {
		rows[i].ID = 0
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "season"}, {Name: "round"}},
		UpdateAll: true,
	}).CreateInBatches(rows, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert player rounds: %w", err)
	}

	r.logger.WithField("rows", len(rows)).Info("Player rounds stored")
	return nil
}

// Rounds lists the distinct (season, round) pairs in chronological order.
func (r *PlayerRoundRepository) Rounds(ctx context.Context) ([]models.RoundKey, error) {
	var keys []models.RoundKey
	err := r.db.WithContext(ctx).
		Model(&models.PlayerRound{}).
		Distinct("season", "round").
		Order("season ASC, round ASC").
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return keys, nil
}

// ByRound returns the records of one round ordered by player.
func (r *PlayerRoundRepository) ByRound(ctx context.Context, season, round int) ([]models.PlayerRound, error) {
	var records []models.PlayerRound
	err := r.db.WithContext(ctx).
		Where("season = ? AND round = ?", season, round).
		Order("player_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load round %d/%d: %w", season, round, err)
	}
	return records, nil
}

func (r *PlayerRoundRepository) All(ctx context.Context) ([]models.PlayerRound, error) {
	var records []models.PlayerRound
	err := r.db.WithContext(ctx).
		Order("season ASC, round ASC, player_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load player rounds: %w", err)
	}
	return records, nil
}

func (r *PlayerRoundRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.PlayerRound{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count player rounds: %w", err)
	}
	return n, nil
}

// Load implements dataset.Source. Trailing features are rebuilt from the raw
// columns so rows imported by older versions stay consistent.
func (r *PlayerRoundRepository) Load(ctx context.Context) (*dataset.Dataset, error) {
	records, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	dataset.BuildFeatures(records)
	return dataset.New(records)
}
