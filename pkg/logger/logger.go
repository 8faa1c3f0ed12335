package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger. An empty level falls back to
// LOG_LEVEL, then to debug in development and info elsewhere.
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(os.Stdout)

	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// Discard returns a logger that drops everything. Used by tests and the CLI
// when --quiet is set.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithService creates a logger with service context
func WithService(serviceName string) *logrus.Entry {
	return GetLogger().WithField("service", serviceName)
}

func WithSquadContext(formation string, budget float64) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"formation": formation,
		"budget":    budget,
	})
}

// WithBacktestContext creates a logger with full backtest context
func WithBacktestContext(runID, formation string, budget float64, topK int) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"run_id":    runID,
		"formation": formation,
		"budget":    budget,
		"top_k":     topK,
	})
}

// WithRoundContext tags a log line with the (season, round) being evaluated
func WithRoundContext(entry *logrus.Entry, season, round int) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"season": season,
		"round":  round,
	})
}
