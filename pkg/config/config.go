package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Database
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Redis
	RedisURL string `mapstructure:"REDIS_URL"`

	// CORS
	CorsOrigins     []string `mapstructure:"CORS_ORIGINS"`
	FrontendOrigin  string   `mapstructure:"FRONTEND_ORIGIN"`
	AllowAllOrigins bool     `mapstructure:"ALLOW_ALL_ORIGINS"`

	// Dataset
	DatasetSource string `mapstructure:"DATASET_SOURCE"` // "csv" or "database"
	RawDataDir    string `mapstructure:"RAW_DATA_DIR"`

	// Model
	ModelType      string  `mapstructure:"MODEL_TYPE"` // "random_forest" or "ridge"
	ForestTrees    int     `mapstructure:"FOREST_TREES"`
	ForestMaxDepth int     `mapstructure:"FOREST_MAX_DEPTH"`
	ForestMinLeaf  int     `mapstructure:"FOREST_MIN_LEAF"`
	ForestSamples  int     `mapstructure:"FOREST_MAX_SAMPLES"`
	ForestJobs     int     `mapstructure:"FOREST_JOBS"`
	RidgeLambda    float64 `mapstructure:"RIDGE_LAMBDA"`
	ModelSeed      int64   `mapstructure:"MODEL_SEED"`

	// Optimization
	SolverMaxNodes  int `mapstructure:"SOLVER_MAX_NODES"`
	BacktestWorkers int `mapstructure:"BACKTEST_WORKERS"`

	// Caching
	SquadCacheTTL    time.Duration `mapstructure:"SQUAD_CACHE_TTL"`
	BacktestCacheTTL time.Duration `mapstructure:"BACKTEST_CACHE_TTL"`

	// Market status feed
	MarketStatusURL         string        `mapstructure:"MARKET_STATUS_URL"`
	MarketStatusTTL         time.Duration `mapstructure:"MARKET_STATUS_TTL"`
	MarketRateLimit         float64       `mapstructure:"MARKET_RATE_LIMIT"`
	ExternalAPITimeout      time.Duration `mapstructure:"EXTERNAL_API_TIMEOUT"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`

	// Background jobs
	RefreshInterval      time.Duration `mapstructure:"REFRESH_INTERVAL"`
	EnableBackgroundJobs bool          `mapstructure:"ENABLE_BACKGROUND_JOBS"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	setDefaults(v)

	// Read from environment
	v.AutomaticEnv()

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATABASE_URL", "sqlite://data/cartola.db")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("FRONTEND_ORIGIN", "")
	v.SetDefault("ALLOW_ALL_ORIGINS", false)

	v.SetDefault("DATASET_SOURCE", "csv")
	v.SetDefault("RAW_DATA_DIR", "data/raw")

	v.SetDefault("MODEL_TYPE", "random_forest")
	v.SetDefault("FOREST_TREES", 100)
	v.SetDefault("FOREST_MAX_DEPTH", 10)
	v.SetDefault("FOREST_MIN_LEAF", 5)
	v.SetDefault("FOREST_MAX_SAMPLES", 5000)
	v.SetDefault("FOREST_JOBS", 0) // 0 means runtime.NumCPU()
	v.SetDefault("RIDGE_LAMBDA", 1.0)
	v.SetDefault("MODEL_SEED", 42)

	v.SetDefault("SOLVER_MAX_NODES", 200000)
	v.SetDefault("BACKTEST_WORKERS", 1)

	v.SetDefault("SQUAD_CACHE_TTL", "15m")
	v.SetDefault("BACKTEST_CACHE_TTL", "6h")

	v.SetDefault("MARKET_STATUS_URL", "https://api.cartola.globo.com/mercado/status")
	v.SetDefault("MARKET_STATUS_TTL", "15m")
	v.SetDefault("MARKET_RATE_LIMIT", 5.0)
	v.SetDefault("EXTERNAL_API_TIMEOUT", "10s")
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)

	v.SetDefault("REFRESH_INTERVAL", "1h")
	v.SetDefault("ENABLE_BACKGROUND_JOBS", true)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := v.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = splitList(corsStr)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.DatasetSource {
	case "csv", "database":
	default:
		return fmt.Errorf("DATASET_SOURCE must be csv or database, got %q", c.DatasetSource)
	}
	switch c.ModelType {
	case "random_forest", "ridge":
	default:
		return fmt.Errorf("MODEL_TYPE must be random_forest or ridge, got %q", c.ModelType)
	}
	if c.BacktestWorkers < 1 {
		return fmt.Errorf("BACKTEST_WORKERS must be at least 1, got %d", c.BacktestWorkers)
	}
	if c.SolverMaxNodes < 1 {
		return fmt.Errorf("SOLVER_MAX_NODES must be positive, got %d", c.SolverMaxNodes)
	}
	return nil
}

// AllowedOrigins merges the configured origins with FRONTEND_ORIGIN.
func (c *Config) AllowedOrigins() []string {
	origins := append([]string(nil), c.CorsOrigins...)
	if origin := strings.TrimSpace(c.FrontendOrigin); origin != "" {
		origins = append(origins, origin)
	}
	return origins
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
