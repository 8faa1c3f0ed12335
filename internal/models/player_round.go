package models

import (
	"fmt"
	"time"
)

// PlayerRound is one player's appearance in one (season, round). Rows are
// immutable once the feature pipeline has filled the trailing columns.
type PlayerRound struct {
	ID       uint     `gorm:"primaryKey" json:"-" csv:"-"`
	PlayerID int      `gorm:"not null;uniqueIndex:idx_player_season_round,priority:1" json:"player_id"`
	Season   int      `gorm:"not null;uniqueIndex:idx_player_season_round,priority:2;index:idx_season_round,priority:1" json:"season"`
	Round    int      `gorm:"not null;uniqueIndex:idx_player_season_round,priority:3;index:idx_season_round,priority:2" json:"round"`
	Position Position `gorm:"type:varchar(3);not null" json:"position"`
	Price    float64  `gorm:"not null" json:"price"`
	Points   float64  `json:"points"`

	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
	ClubID   int    `json:"club_id,omitempty"`
	ClubName string `json:"club_name,omitempty"`

	// Raw scout counts for the round
	Goals         float64 `json:"-"`
	Assists       float64 `json:"-"`
	CleanSheets   float64 `json:"-"`
	Tackles       float64 `json:"-"`
	ShotsWide     float64 `json:"-"`
	FoulsSuffered float64 `json:"-"`

	// Trailing features over the previous five appearances
	Mean5              float64 `json:"mean_5"`
	Std5               float64 `json:"std_5"`
	GoalsMean5         float64 `json:"goals_mean_5,omitempty"`
	AssistsMean5       float64 `json:"assists_mean_5,omitempty"`
	CleanSheetMean5    float64 `json:"clean_sheet_mean_5,omitempty"`
	TacklesMean5       float64 `json:"tackles_mean_5,omitempty"`
	ShotsWideMean5     float64 `json:"shots_wide_mean_5,omitempty"`
	FoulsSufferedMean5 float64 `json:"fouls_suffered_mean_5,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName specifies the table name for GORM
func (PlayerRound) TableName() string {
	return "player_rounds"
}

func (r *PlayerRound) Key() RoundKey {
	return RoundKey{Season: r.Season, Round: r.Round}
}

// DisplayName prefers the nickname, as Cartola does.
func (r *PlayerRound) DisplayName() string {
	if r.Nickname != "" {
		return r.Nickname
	}
	return r.Name
}

// RoundKey identifies a (season, round) pair.
type RoundKey struct {
	Season int `json:"season"`
	Round  int `json:"round"`
}

// Less orders keys chronologically.
func (k RoundKey) Less(o RoundKey) bool {
	if k.Season != o.Season {
		return k.Season < o.Season
	}
	return k.Round < o.Round
}

func (k RoundKey) String() string {
	return fmt.Sprintf("%d/%d", k.Season, k.Round)
}
