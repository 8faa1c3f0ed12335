package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cartola-optimizer/internal/api"
	"github.com/stitts-dev/cartola-optimizer/internal/api/handlers"
	"github.com/stitts-dev/cartola-optimizer/internal/dataset"
	"github.com/stitts-dev/cartola-optimizer/internal/ml"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/internal/providers"
	"github.com/stitts-dev/cartola-optimizer/internal/repository"
	"github.com/stitts-dev/cartola-optimizer/internal/services"
	"github.com/stitts-dev/cartola-optimizer/internal/websocket"
	"github.com/stitts-dev/cartola-optimizer/pkg/config"
	"github.com/stitts-dev/cartola-optimizer/pkg/database"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

type dbPinger struct{ db *database.DB }

func (p dbPinger) Ping(context.Context) error { return p.db.Ping() }

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger("", cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	entry := log.WithField("service", "cartola-optimizer")

	health := map[string]handlers.Pinger{}

	// Dataset source
	var source dataset.Source = dataset.DirSource{Dir: cfg.RawDataDir}
	if cfg.DatasetSource == "database" {
		db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			entry.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		repo := repository.NewPlayerRoundRepository(db.DB, log.WithField("component", "repository"))
		if err := repo.Migrate(context.Background()); err != nil {
			entry.Fatalf("Failed to migrate database: %v", err)
		}
		source = repo
		health["database"] = dbPinger{db}
	}

	// Redis is optional; without it caching falls back to in-process state.
	cache := services.NewCacheService(connectRedis(cfg.RedisURL, entry))
	if cache.Enabled() {
		health["redis"] = cache
	}

	trainer, err := ml.NewTrainer(cfg)
	if err != nil {
		entry.Fatalf("Failed to build trainer: %v", err)
	}

	metrics := services.NewMetrics()
	opt := optimizer.NewSquadOptimizer(cfg.SolverMaxNodes,
		optimizer.WithLogger(log.WithField("component", "optimizer")),
		optimizer.WithSolveObserver(metrics.ObserveSolve),
	)

	refresher := services.NewRefresher(source, trainer, cfg.ModelType, metrics, log.WithField("component", "refresher"))
	if _, err := refresher.Refresh(context.Background()); err != nil {
		entry.WithError(err).Warn("Initial dataset load failed; squads are unavailable until the next refresh")
	}
	if cfg.EnableBackgroundJobs {
		if err := refresher.Start(cfg.RefreshInterval); err != nil {
			entry.Fatalf("Failed to start refresher: %v", err)
		}
		defer refresher.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var origins []string
	if !cfg.AllowAllOrigins {
		origins = cfg.AllowedOrigins()
	} else if cfg.IsProduction() {
		entry.Warn("ALLOW_ALL_ORIGINS is set in production")
	}
	hub := websocket.NewHub(origins, log.WithField("component", "websocket"))
	go hub.Run(ctx)

	cartola := providers.NewCartolaClient(providers.CartolaOptions{
		URL:              cfg.MarketStatusURL,
		Timeout:          cfg.ExternalAPITimeout,
		RequestsPerSec:   cfg.MarketRateLimit,
		FailureThreshold: cfg.CircuitBreakerThreshold,
	}, log.WithField("component", "cartola"))

	squads := services.NewSquadService(refresher, opt, cache, cfg.SquadCacheTTL, metrics, log.WithField("component", "squads"))
	backtests := services.NewBacktestService(refresher, trainer, opt, hub, cache, cfg.BacktestCacheTTL, cfg.BacktestWorkers, metrics, log.WithField("component", "backtest"))
	market := services.NewMarketService(cartola, cache, cfg.MarketStatusTTL, metrics, log.WithField("component", "market"))

	router := api.NewRouter(api.Dependencies{
		Squads:          squads,
		Backtests:       backtests,
		Market:          market,
		Snapshots:       refresher,
		Health:          health,
		Registry:        metrics.Registry,
		WebSocket:       hub.HandleWebSocket,
		CorsOrigins:     cfg.AllowedOrigins(),
		AllowAllOrigins: cfg.AllowAllOrigins,
		Logger:          log.WithField("component", "http"),
	})

	for _, route := range router.Routes() {
		entry.Debugf("%s %s", route.Method, route.Path)
	}

	// Backtests can run for minutes, so there is no write timeout.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		entry.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	entry.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		entry.Errorf("Server forced to shutdown: %v", err)
	}

	entry.Info("Server exited")
}

func connectRedis(url string, log *logrus.Entry) *redis.Client {
	if url == "" {
		log.Info("REDIS_URL is empty, caching disabled")
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.WithError(err).Warn("Invalid REDIS_URL, caching disabled")
		return nil
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable, caching disabled")
		_ = client.Close()
		return nil
	}
	return client
}
