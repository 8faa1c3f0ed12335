package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/pkg/utils"
)

type SquadHandler struct {
	squads SquadGenerator
	logger *logrus.Entry
}

func NewSquadHandler(squads SquadGenerator, logger *logrus.Entry) *SquadHandler {
	return &SquadHandler{squads: squads, logger: logger}
}

type squadRequest struct {
	Budget    float64 `json:"budget" binding:"required,gt=0"`
	Formation string  `json:"formation"`
}

// GenerateSquad picks starters, bench, captain and luxury reserve for the
// predicted round.
func (h *SquadHandler) GenerateSquad(c *gin.Context) {
	var req squadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}
	if req.Formation == "" {
		req.Formation = models.DefaultFormation
	}

	resp, cached, err := h.squads.GenerateSquad(c.Request.Context(), req.Budget, req.Formation)
	if err != nil {
		sendDomainError(c, h.logger, err)
		return
	}
	utils.SendSuccessWithMeta(c, resp, meta(c, cached))
}

// ListFormations returns the supported formations and their position counts.
func (h *SquadHandler) ListFormations(c *gin.Context) {
	type formation struct {
		Key       string               `json:"key"`
		Positions models.FormationSpec `json:"positions"`
	}
	keys := models.FormationKeys()
	out := make([]formation, 0, len(keys))
	for _, key := range keys {
		spec, _ := models.Formation(key)
		out = append(out, formation{Key: key, Positions: spec})
	}
	utils.SendSuccess(c, out)
}
