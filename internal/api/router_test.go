package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/cartola-optimizer/internal/api/handlers"
	"github.com/stitts-dev/cartola-optimizer/internal/backtest"
	"github.com/stitts-dev/cartola-optimizer/internal/models"
	"github.com/stitts-dev/cartola-optimizer/internal/optimizer"
	"github.com/stitts-dev/cartola-optimizer/internal/providers"
	"github.com/stitts-dev/cartola-optimizer/internal/services"
	"github.com/stitts-dev/cartola-optimizer/pkg/logger"
)

type MockSquadGenerator struct {
	mock.Mock
}

func (m *MockSquadGenerator) GenerateSquad(ctx context.Context, budget float64, formation string) (*services.SquadResponse, bool, error) {
	args := m.Called(ctx, budget, formation)
	resp, _ := args.Get(0).(*services.SquadResponse)
	return resp, args.Bool(1), args.Error(2)
}

type MockBacktestRunner struct {
	mock.Mock
}

func (m *MockBacktestRunner) RunBacktest(ctx context.Context, cfg backtest.Config) (*services.BacktestResult, bool, error) {
	args := m.Called(ctx, cfg)
	res, _ := args.Get(0).(*services.BacktestResult)
	return res, args.Bool(1), args.Error(2)
}

type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) Status(ctx context.Context) (json.RawMessage, bool, error) {
	args := m.Called(ctx)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Bool(1), args.Error(2)
}

type stubSnapshots struct{ snap *services.Snapshot }

func (s stubSnapshots) Snapshot() *services.Snapshot { return s.snap }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
	Meta *struct {
		Cached    bool   `json:"cached"`
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

type fixture struct {
	router   *gin.Engine
	squads   *MockSquadGenerator
	backtest *MockBacktestRunner
	market   *MockMarket
}

func newFixture(snap *services.Snapshot, health map[string]handlers.Pinger) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		squads:   &MockSquadGenerator{},
		backtest: &MockBacktestRunner{},
		market:   &MockMarket{},
	}
	f.router = NewRouter(Dependencies{
		Squads:      f.squads,
		Backtests:   f.backtest,
		Market:      f.market,
		Snapshots:   stubSnapshots{snap},
		Health:      health,
		Registry:    services.NewMetrics().Registry,
		CorsOrigins: []string{"http://localhost:5173"},
		Logger:      logger.Discard().WithField("service", "api"),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestGenerateSquad_Success(t *testing.T) {
	f := newFixture(nil, nil)
	resp := &services.SquadResponse{Formation: "4-4-2", Budget: 120, Summary: services.SquadSummary{PredictedTotal: 71.5}}
	f.squads.On("GenerateSquad", mock.Anything, 120.0, "4-4-2").Return(resp, true, nil)

	w, env := f.do(t, http.MethodPost, "/api/v1/squad", `{"budget":120,"formation":"4-4-2"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	require.NotNil(t, env.Meta)
	assert.True(t, env.Meta.Cached)
	assert.NotEmpty(t, env.Meta.RequestID)
	assert.Equal(t, env.Meta.RequestID, w.Header().Get("X-Request-ID"))

	var got services.SquadResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 71.5, got.Summary.PredictedTotal)
	f.squads.AssertExpectations(t)
}

func TestGenerateSquad_DefaultsFormation(t *testing.T) {
	f := newFixture(nil, nil)
	f.squads.On("GenerateSquad", mock.Anything, 100.0, models.DefaultFormation).Return(&services.SquadResponse{}, false, nil)

	w, _ := f.do(t, http.MethodPost, "/api/v1/squad", `{"budget":100}`)
	assert.Equal(t, http.StatusOK, w.Code)
	f.squads.AssertExpectations(t)
}

func TestGenerateSquad_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: unknown formation", optimizer.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"infeasible", fmt.Errorf("%w: too poor", optimizer.ErrInfeasible), http.StatusUnprocessableEntity, "OPTIMIZATION_ERROR"},
		{"no predictions", services.ErrNoPredictions, http.StatusServiceUnavailable, "INSUFFICIENT_DATA"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(nil, nil)
			f.squads.On("GenerateSquad", mock.Anything, 50.0, "4-3-3").Return(nil, false, tc.err)

			w, env := f.do(t, http.MethodPost, "/api/v1/squad", `{"budget":50,"formation":"4-3-3"}`)
			assert.Equal(t, tc.status, w.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestGenerateSquad_RejectsBadBody(t *testing.T) {
	f := newFixture(nil, nil)

	for _, body := range []string{`{"budget":0}`, `{"budget":-3}`, `not json`} {
		w, env := f.do(t, http.MethodPost, "/api/v1/squad", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		require.NotNil(t, env.Error, body)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	}
	f.squads.AssertNotCalled(t, "GenerateSquad", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBacktest_AppliesDefaults(t *testing.T) {
	f := newFixture(nil, nil)
	want := backtest.DefaultConfig()
	want.TopK = 10
	f.backtest.On("RunBacktest", mock.Anything, want).
		Return(&services.BacktestResult{RunID: "r1", Summary: &backtest.Summary{RoundsEvaluated: 3}}, false, nil)

	w, env := f.do(t, http.MethodPost, "/api/v1/backtest", `{"top_k":10}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "r1", got["run_id"])
	assert.Equal(t, 3.0, got["rounds_evaluated"])
	f.backtest.AssertExpectations(t)
}

func TestRunBacktest_EmptyBodyUsesDefaults(t *testing.T) {
	f := newFixture(nil, nil)
	f.backtest.On("RunBacktest", mock.Anything, backtest.DefaultConfig()).
		Return(&services.BacktestResult{Summary: &backtest.Summary{}}, false, nil)

	w, _ := f.do(t, http.MethodPost, "/api/v1/backtest", "")
	assert.Equal(t, http.StatusOK, w.Code)
	f.backtest.AssertExpectations(t)
}

func TestMarketStatus(t *testing.T) {
	f := newFixture(nil, nil)
	f.market.On("Status", mock.Anything).Return(json.RawMessage(`{"rodada_atual":12}`), false, nil).Once()
	f.market.On("Status", mock.Anything).Return(nil, false, providers.ErrUpstreamUnavailable).Once()

	w, env := f.do(t, http.MethodGet, "/api/v1/market/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rodada_atual":12}`, string(env.Data))

	w, env = f.do(t, http.MethodGet, "/api/v1/market/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", env.Error.Code)
}

func TestFormations(t *testing.T) {
	f := newFixture(nil, nil)

	w, env := f.do(t, http.MethodGet, "/api/v1/formations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []struct {
		Key       string         `json:"key"`
		Positions map[string]int `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, len(models.FormationKeys()))
	for _, formation := range got {
		total := 0
		for _, n := range formation.Positions {
			total += n
		}
		assert.Equal(t, 11, total, formation.Key)
	}
}

func TestHealth(t *testing.T) {
	snap := &services.Snapshot{Round: models.RoundKey{Season: 2024, Round: 12}, ScoreSource: "ridge"}

	w, _ := newFixture(snap, nil).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w, _ = newFixture(nil, nil).do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	w, _ = newFixture(snap, map[string]handlers.Pinger{"redis": failingPinger{}}).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cartola_predicted_round")
}

func TestCORS(t *testing.T) {
	f := newFixture(nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/squad", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/squad", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
