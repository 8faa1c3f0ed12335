package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultMarketStatusURL is Cartola's public market status endpoint.
const DefaultMarketStatusURL = "https://api.cartola.globo.com/mercado/status"

// ErrUpstreamUnavailable is returned while the circuit breaker is open or
// when the feed cannot be reached.
var ErrUpstreamUnavailable = errors.New("market status feed unavailable")

// MarketStatus holds the fields we read from the feed. Raw keeps the full
// payload for passthrough.
type MarketStatus struct {
	CurrentRound int             `json:"rodada_atual"`
	Status       int             `json:"status_mercado"`
	Season       int             `json:"temporada"`
	TeamsPicked  int             `json:"times_escalados"`
	Raw          json.RawMessage `json:"-"`
}

type CartolaOptions struct {
	URL              string
	Timeout          time.Duration
	RequestsPerSec   float64
	FailureThreshold int
}

// CartolaClient fetches the market status behind a rate limiter and a
// circuit breaker.
type CartolaClient struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Entry
}

func NewCartolaClient(opts CartolaOptions, logger *logrus.Entry) *CartolaClient {
	if opts.URL == "" {
		opts.URL = DefaultMarketStatusURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}

	threshold := uint32(opts.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cartola-market-status",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider":   name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Market status circuit breaker state changed")
		},
	})

	return &CartolaClient{
		url:        opts.URL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		breaker:    cb,
		logger:     logger,
	}
}

// MarketStatus fetches the current market status.
func (c *CartolaClient) MarketStatus(ctx context.Context) (*MarketStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	return result.(*MarketStatus), nil
}

func (c *CartolaClient) fetch(ctx context.Context) (*MarketStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read market status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var status MarketStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode market status: %w", err)
	}
	status.Raw = json.RawMessage(body)

	c.logger.WithFields(logrus.Fields{
		"round":    status.CurrentRound,
		"status":   status.Status,
		"duration": time.Since(start).String(),
	}).Debug("Market status fetched")

	return &status, nil
}
