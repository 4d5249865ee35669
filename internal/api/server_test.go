package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/market"
	"signal-engine/internal/risk"
	"signal-engine/pkg/db"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, *market.History, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	history := market.NewHistory(500)
	riskMgr := risk.NewManager(risk.DefaultSettings(), risk.NewBook(), bus)

	eng := engine.New(engine.Config{
		Symbols:        []string{"BTCUSDT"},
		InitialCapital: 10000,
	}, engine.Deps{
		Bus:     bus,
		History: history,
		Risk:    riskMgr,
	})

	server := NewServer(bus, database, riskMgr, eng, history, SystemMeta{
		Symbols:     []string{"BTCUSDT"},
		UseMockFeed: true,
		Version:     "test",
	})

	httpServer := httptest.NewServer(server.Router)
	cleanup := func() {
		httpServer.Close()
		bus.Close()
		_ = database.Close()
	}
	return httpServer, history, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndStatus(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	var health struct {
		Status string `json:"status"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/health", nil, &health); status != http.StatusOK {
		t.Fatalf("health status=%d", status)
	}
	if health.Status != "ok" {
		t.Fatalf("expected ok, got %q", health.Status)
	}

	var statusResp struct {
		Engine struct {
			Running bool `json:"running"`
		} `json:"engine"`
		Meta SystemMeta `json:"meta"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/status", nil, &statusResp); status != http.StatusOK {
		t.Fatalf("status endpoint=%d", status)
	}
	if statusResp.Engine.Running {
		t.Fatalf("engine should not be running in the test harness")
	}
	if statusResp.Meta.Version != "test" {
		t.Fatalf("unexpected meta: %+v", statusResp.Meta)
	}
}

func TestUpdateAutoTradingSettingsValidation(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	var errResp struct {
		Error string `json:"error"`
	}
	status := doJSONRequest(t, client, http.MethodPut, ts.URL+"/api/settings/auto-trading", map[string]any{
		"enabled": true,
		"signal_aggregation": map[string]any{
			"method": "quantum",
		},
	}, &errResp)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown aggregation method, got %d", status)
	}
	if errResp.Error == "" {
		t.Fatalf("expected an error message")
	}

	var applied engine.AutoTradingSettings
	status = doJSONRequest(t, client, http.MethodPut, ts.URL+"/api/settings/auto-trading", map[string]any{
		"enabled": true,
		"signal_aggregation": map[string]any{
			"method":          "weighted",
			"minimum_signals": 2,
		},
		"risk_management": map[string]any{
			"enable_risk_management": true,
			"max_position_size":      5,
			"stop_loss_percent":      2,
			"take_profit_percent":    4,
			"max_daily_loss":         200,
		},
	}, &applied)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if applied.SignalAggregation.Method != engine.MethodWeighted {
		t.Fatalf("expected weighted method echoed back, got %+v", applied.SignalAggregation)
	}

	var readBack engine.AutoTradingSettings
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/settings/auto-trading", nil, &readBack); status != http.StatusOK {
		t.Fatalf("settings read status=%d", status)
	}
	if readBack.SignalAggregation.MinimumSignals != 2 {
		t.Fatalf("expected minimumSignals=2 persisted, got %+v", readBack.SignalAggregation)
	}
}

func TestRunBacktestOverHistory(t *testing.T) {
	ts, history, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	// A falling then rising series keeps the crossover rule busy.
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	price := 300.0
	for i := 0; i < 120; i++ {
		if i < 60 {
			price -= 1
		} else {
			price += 1.5
		}
		history.Append("BTCUSDT", market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 10,
		})
	}

	var result struct {
		Symbol       string  `json:"symbol"`
		FinalCapital float64 `json:"final_capital"`
		EquityCurve  []any   `json:"equity_curve"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/backtest", map[string]any{
		"id":              "bt-1",
		"template":        "moving-average-crossover",
		"symbol":          "BTCUSDT",
		"parameters":      map[string]any{"fastPeriod": 3, "slowPeriod": 5},
		"initial_capital": 10000,
	}, &result)
	if status != http.StatusOK {
		t.Fatalf("backtest status=%d result=%+v", status, result)
	}
	if result.Symbol != "BTCUSDT" || len(result.EquityCurve) != 120 {
		t.Fatalf("unexpected result: symbol=%s curve=%d", result.Symbol, len(result.EquityCurve))
	}
}

func TestRunBacktestRejectsUnknownTemplate(t *testing.T) {
	ts, history, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	history.Append("BTCUSDT", market.Bar{Timestamp: time.Now(), Close: 100})

	var errResp struct {
		Error string `json:"error"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/backtest", map[string]any{
		"template": "does-not-exist",
		"symbol":   "BTCUSDT",
	}, &errResp)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown template, got %d", status)
	}
}

func TestSignalsFallBackToEngineView(t *testing.T) {
	ts, _, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	var resp struct {
		Signals []any `json:"signals"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/signals?symbol=BTCUSDT", nil, &resp); status != http.StatusOK {
		t.Fatalf("signals status=%d", status)
	}
	if len(resp.Signals) != 0 {
		t.Fatalf("expected no signals yet, got %d", len(resp.Signals))
	}
}
