package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/api/handlers"
	"github.com/stitts-dev/cartola-optimizer/internal/api/middleware"
	"github.com/stitts-dev/cartola-optimizer/internal/services"
)

// Dependencies are the services the HTTP layer serves.
type Dependencies struct {
	Squads    handlers.SquadGenerator
	Backtests handlers.BacktestRunner
	Market    handlers.MarketStatusSource
	Snapshots services.SnapshotProvider
	Health    map[string]handlers.Pinger
	Registry  *prometheus.Registry
	WebSocket gin.HandlerFunc

	CorsOrigins     []string
	AllowAllOrigins bool
	Logger          *logrus.Entry
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORS(deps.CorsOrigins, deps.AllowAllOrigins))

	healthHandler := handlers.NewHealthHandler(deps.Snapshots, deps.Health)
	router.GET("/health", healthHandler.GetHealth)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	SetupRoutes(router.Group("/api/v1"), deps)
	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, deps Dependencies) {
	squadHandler := handlers.NewSquadHandler(deps.Squads, deps.Logger)
	backtestHandler := handlers.NewBacktestHandler(deps.Backtests, deps.Logger)
	marketHandler := handlers.NewMarketHandler(deps.Market, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Snapshots, deps.Health)

	group.GET("/health", healthHandler.GetHealth)
	group.GET("/formations", squadHandler.ListFormations)
	group.POST("/squad", squadHandler.GenerateSquad)
	group.POST("/backtest", backtestHandler.RunBacktest)
	group.GET("/market/status", marketHandler.GetStatus)

	if deps.WebSocket != nil {
		group.GET("/ws/backtest-progress", deps.WebSocket)
	}
}
