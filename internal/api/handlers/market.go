package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/pkg/utils"
)

type MarketHandler struct {
	market MarketStatusSource
	logger *logrus.Entry
}

func NewMarketHandler(market MarketStatusSource, logger *logrus.Entry) *MarketHandler {
	return &MarketHandler{market: market, logger: logger}
}

// GetStatus passes the upstream market status through unchanged.
func (h *MarketHandler) GetStatus(c *gin.Context) {
	raw, cached, err := h.market.Status(c.Request.Context())
	if err != nil {
		sendDomainError(c, h.logger, err)
		return
	}
	utils.SendSuccessWithMeta(c, raw, meta(c, cached))
}
