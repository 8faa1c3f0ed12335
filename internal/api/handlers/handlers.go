package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/api/middleware"
	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/internal/providers"
	"github.com/stitts-dev/cartola-optimizer/internal/services"
	"github.com/stitts-dev/cartola-optimizer/pkg/utils"
)

// SquadGenerator is implemented by services.SquadService.
type SquadGenerator interface {
	GenerateSquad(ctx context.Context, budget float64, formation string) (*services.SquadResponse, bool, error)
}

// BacktestRunner is implemented by services.BacktestService.
type BacktestRunner interface {
	RunBacktest(ctx context.Context, cfg backtest.Config) (*services.BacktestResult, bool, error)
}

// MarketStatusSource is implemented by services.MarketService.
type MarketStatusSource interface {
	Status(ctx context.Context) (json.RawMessage, bool, error)
}

// sendDomainError maps service errors onto the response envelope.
func sendDomainError(c *gin.Context, log *logrus.Entry, err error) {
	switch {
	case errors.Is(err, optimizer.ErrValidation):
		utils.SendValidationError(c, "Invalid request", err.Error())
	case errors.Is(err, optimizer.ErrInfeasible):
		utils.SendInfeasible(c, "No squad satisfies the budget and formation", err.Error())
	case errors.Is(err, services.ErrNoPredictions):
		utils.SendUnavailable(c, utils.ErrCodeInsufficientData, "Predictions are not available yet")
	case errors.Is(err, providers.ErrUpstreamUnavailable):
		utils.SendUnavailable(c, utils.ErrCodeUnavailable, "Market status feed is unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		utils.SendUnavailable(c, utils.ErrCodeUnavailable, "Request timed out")
	default:
		log.WithError(err).Error("Request failed")
		utils.SendInternalError(c, "Internal error")
	}
}

func meta(c *gin.Context, cached bool) *utils.Meta {
	return &utils.Meta{Cached: cached, RequestID: c.GetString(middleware.RequestIDKey)}
}
