package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/pkg/utils"
)

type BacktestHandler struct {
	runner BacktestRunner
	logger *logrus.Entry
}

func NewBacktestHandler(runner BacktestRunner, logger *logrus.Entry) *BacktestHandler {
	return &BacktestHandler{runner: runner, logger: logger}
}

// Omitted fields take the backtest defaults.
type backtestRequest struct {
	Budget         *float64 `json:"budget"`
	Formation      *string  `json:"formation"`
	TopK           *int     `json:"top_k"`
	MinTrainRounds *int     `json:"min_train_rounds"`
}

func (r backtestRequest) config() backtest.Config {
	cfg := backtest.DefaultConfig()
	if r.Budget != nil {
		cfg.Budget = *r.Budget
	}
	if r.Formation != nil {
		cfg.Formation = *r.Formation
	}
	if r.TopK != nil {
		cfg.TopK = *r.TopK
	}
	if r.MinTrainRounds != nil {
		cfg.MinTrainRounds = *r.MinTrainRounds
	}
	return cfg
}

// RunBacktest walks the loaded history forward and reports model and
// baseline performance. Progress is streamed on the websocket endpoint.
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req backtestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendValidationError(c, "Invalid request body", err.Error())
			return
		}
	}

	result, cached, err := h.runner.RunBacktest(c.Request.Context(), req.config())
	if err != nil {
		sendDomainError(c, h.logger, err)
		return
	}
	utils.SendSuccessWithMeta(c, result, meta(c, cached))
}
