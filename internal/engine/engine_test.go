package engine

import (
	"context"
	"testing"
	"time"

	"signal-engine/internal/events"
	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/order"
	"signal-engine/internal/risk"
	"signal-engine/internal/strategy"
)

type testHarness struct {
	clock   *manualClock
	bus     *events.Bus
	history *market.History
	riskMgr *risk.Manager
	gateway *order.PaperGateway
	engine  *Engine
}

func newHarness(t *testing.T, settings risk.Settings) *testHarness {
	t.Helper()

	clock := newManualClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	history := market.NewHistory(200)
	riskMgr := risk.NewManager(settings, risk.NewBook(), bus)
	gateway := order.NewPaperGateway(1_000_000, 0, 0, 1)
	exec := order.NewAsyncExecutor(order.NewExecutor(gateway, nil, bus, 0), 2)

	// Orders flow through the queue to the executor, same as main.
	queue := order.NewQueue(0)
	drainCtx, stopDrain := context.WithCancel(context.Background())
	go queue.Drain(drainCtx, func(o order.Order) {
		exec.ExecuteAsync(drainCtx, o)
	})
	t.Cleanup(func() {
		stopDrain()
		queue.Close()
	})

	eng := New(Config{
		Symbols:        []string{"BTCUSDT"},
		TickInterval:   time.Second,
		SignalInterval: 5 * time.Second,
		RiskInterval:   10 * time.Second,
		InitialCapital: 10000,
		MinConfidence:  0.7,
	}, Deps{
		Clock:   clock,
		Bus:     bus,
		History: history,
		Risk:    riskMgr,
		Queue:   queue,
		Exec:    exec,
		Store:   nil,
	})

	return &testHarness{
		clock:   clock,
		bus:     bus,
		history: history,
		riskMgr: riskMgr,
		gateway: gateway,
		engine:  eng,
	}
}

func (h *testHarness) loadCloses(symbol string, closes []float64) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		h.history.Append(symbol, market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		})
	}
}

// waitFor polls cond until it holds or the deadline passes. The engine
// runs its task bodies on goroutines, so tests observe effects rather
// than call them directly.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func fallingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 300 - float64(i)*3
	}
	return closes
}

func TestEngineOpensPositionOnStrongSignal(t *testing.T) {
	h := newHarness(t, risk.Settings{
		EnableRiskManagement: true,
		StopLossPercent:      2,
		TakeProfitPercent:    4,
		MaxPositionSize:      10,
		MaxDailyLoss:         500,
	})
	h.riskMgr.SetAutoTrading(true)

	// A steadily falling series pins RSI at 0: a maximum-confidence buy.
	h.loadCloses("BTCUSDT", fallingCloses(30))
	h.engine.SetStrategies([]strategy.Config{{
		ID:       "rsi-btc",
		Template: strategy.TemplateRSIOversold,
		Symbol:   "BTCUSDT",
		Enabled:  true,
	}})

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.engine.Stop()

	h.clock.Advance(5 * time.Second)

	waitFor(t, "no position opened from the buy decision", func() bool {
		pos, ok := h.riskMgr.Book().Get("BTCUSDT")
		return ok && pos.Side == risk.SideLong && pos.Quantity > 0
	})

	dec, ok := h.engine.LastDecision("BTCUSDT")
	if !ok || dec.Action != strategy.ActionBuy {
		t.Fatalf("expected recorded buy decision, got %+v ok=%v", dec, ok)
	}
	if len(h.engine.LastSignals("BTCUSDT")) != 1 {
		t.Fatal("expected one strategy signal recorded")
	}

	pos, _ := h.riskMgr.Book().Get("BTCUSDT")
	if pos.Quantity > 10 {
		t.Fatalf("position size %v exceeds MaxPositionSize", pos.Quantity)
	}
}

func TestEngineRespectsAutoTradingGate(t *testing.T) {
	h := newHarness(t, risk.Settings{
		EnableRiskManagement: true,
		StopLossPercent:      2,
		MaxPositionSize:      10,
	})
	// Auto trading stays off.

	h.loadCloses("BTCUSDT", fallingCloses(30))
	h.engine.SetStrategies([]strategy.Config{{
		ID:       "rsi-btc",
		Template: strategy.TemplateRSIOversold,
		Symbol:   "BTCUSDT",
		Enabled:  true,
	}})

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.engine.Stop()

	h.clock.Advance(5 * time.Second)

	// The decision is recorded but nothing executes.
	waitFor(t, "decision not recorded", func() bool {
		dec, ok := h.engine.LastDecision("BTCUSDT")
		return ok && dec.Action == strategy.ActionBuy
	})
	time.Sleep(50 * time.Millisecond)
	if h.riskMgr.Book().Len() != 0 {
		t.Fatal("no position should open while auto trading is disabled")
	}
}

func TestEngineStopLossExit(t *testing.T) {
	h := newHarness(t, risk.Settings{
		EnableRiskManagement: true,
		StopLossPercent:      2,
		TakeProfitPercent:    50,
		MaxPositionSize:      10,
	})

	h.riskMgr.Book().Open(risk.Position{
		Symbol:     "BTCUSDT",
		Side:       risk.SideLong,
		Quantity:   2,
		EntryPrice: 100,
		OpenedAt:   h.clock.Now(),
	})
	// Latest close sits well below the 2% stop.
	h.loadCloses("BTCUSDT", []float64{100, 99, 95})

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.engine.Stop()

	h.clock.Advance(time.Second)

	waitFor(t, "stop loss did not flatten the position", func() bool {
		return h.riskMgr.Book().Len() == 0
	})

	// The realized loss flows into the daily PnL.
	waitFor(t, "realized loss not booked", func() bool {
		return h.riskMgr.Metrics().DailyPnL < 0
	})
}

func TestEngineKillSwitchStopsExecution(t *testing.T) {
	h := newHarness(t, risk.Settings{
		EnableRiskManagement: true,
		StopLossPercent:      2,
		MaxPositionSize:      10,
		MaxDailyLoss:         100,
	})
	h.riskMgr.SetAutoTrading(true)
	h.riskMgr.RecordRealized(-150) // already past the daily limit

	h.loadCloses("BTCUSDT", fallingCloses(30))

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.engine.Stop()

	// Risk check trips the kill switch before any strategy is armed.
	h.clock.Advance(10 * time.Second)
	waitFor(t, "kill switch did not trip", func() bool {
		return !h.riskMgr.AutoTradingEnabled()
	})

	// Later signal ticks must not execute anything.
	h.engine.SetStrategies([]strategy.Config{{
		ID:       "rsi-btc",
		Template: strategy.TemplateRSIOversold,
		Symbol:   "BTCUSDT",
		Enabled:  true,
	}})
	h.clock.Advance(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if h.riskMgr.Book().Len() != 0 {
		t.Fatal("kill switch should block new positions")
	}
}

func TestEngineSettingsValidation(t *testing.T) {
	h := newHarness(t, risk.DefaultSettings())

	err := h.engine.UpdateAutoTradingSettings(AutoTradingSettings{
		Enabled:           true,
		RiskManagement:    risk.DefaultSettings(),
		SignalAggregation: AggregationSettings{Method: "quantum"},
	})
	if err == nil {
		t.Fatal("unsupported aggregation method must be rejected at update time")
	}

	err = h.engine.UpdateAutoTradingSettings(AutoTradingSettings{
		Enabled:           true,
		RiskManagement:    risk.DefaultSettings(),
		SignalAggregation: AggregationSettings{Method: MethodWeighted, MinimumSignals: 2},
	})
	if err != nil {
		t.Fatalf("weighted method should be accepted: %v", err)
	}

	got := h.engine.AutoTradingSettings()
	if got.SignalAggregation.Method != MethodWeighted || got.SignalAggregation.MinimumSignals != 2 {
		t.Fatalf("settings not applied: %+v", got.SignalAggregation)
	}
	if !got.Enabled {
		t.Fatal("enabled flag should pass through to the risk manager")
	}
}

func TestEngineIngestsBarsAndIndicators(t *testing.T) {
	h := newHarness(t, risk.DefaultSettings())
	ind := indicators.NewEngine(2, 3, 3, 50)
	h.engine.ind = ind

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.engine.Stop()

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, c := range []float64{100, 101, 102, 103, 104} {
		h.bus.Publish(events.EventPriceBar, market.Tick{
			Symbol: "BTCUSDT",
			Bar: market.Bar{
				Timestamp: start.Add(time.Duration(i) * time.Minute),
				Open:      c, High: c, Low: c, Close: c,
				Volume: 1,
			},
		})
	}

	waitFor(t, "bars not ingested into history", func() bool {
		return h.history.Len("BTCUSDT") == 5
	})
	waitFor(t, "indicator snapshot not updated", func() bool {
		vals := h.engine.Indicators("BTCUSDT")
		return vals["ma_fast"] == 103.5 && vals["ma_slow"] == 103
	})
}

func TestEngineStartStop(t *testing.T) {
	h := newHarness(t, risk.DefaultSettings())

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.engine.Start(context.Background()); err == nil {
		t.Fatal("second start should fail while running")
	}

	if orphaned := h.engine.Stop(); orphaned != 0 {
		t.Fatalf("orphaned=%d with no in-flight work", orphaned)
	}
	if h.engine.Status().Running {
		t.Fatal("status should report stopped")
	}
	// Stop is idempotent.
	if orphaned := h.engine.Stop(); orphaned != 0 {
		t.Fatalf("second stop reported %d orphans", orphaned)
	}
}

// With only the queue wired, orders must still reach the gateway through
// the drain loop rather than any direct executor path.
func TestEngineSubmitsThroughQueue(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	clock := newManualClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	history := market.NewHistory(200)
	riskMgr := risk.NewManager(risk.Settings{
		EnableRiskManagement: true,
		StopLossPercent:      2,
		MaxPositionSize:      10,
	}, risk.NewBook(), bus)
	riskMgr.SetAutoTrading(true)
	gateway := order.NewPaperGateway(1_000_000, 0, 0, 1)
	exec := order.NewAsyncExecutor(order.NewExecutor(gateway, nil, bus, 0), 2)

	queue := order.NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})
	go queue.Drain(ctx, func(o order.Order) {
		exec.ExecuteAsync(ctx, o)
	})

	eng := New(Config{
		Symbols:        []string{"BTCUSDT"},
		SignalInterval: 5 * time.Second,
		InitialCapital: 10000,
		MinConfidence:  0.7,
	}, Deps{
		Clock:   clock,
		Bus:     bus,
		History: history,
		Risk:    riskMgr,
		Queue:   queue,
	})

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range fallingCloses(30) {
		history.Append("BTCUSDT", market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		})
	}
	eng.SetStrategies([]strategy.Config{{
		ID:       "rsi-btc",
		Template: strategy.TemplateRSIOversold,
		Symbol:   "BTCUSDT",
		Enabled:  true,
	}})

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	clock.Advance(5 * time.Second)

	waitFor(t, "queued order did not open a position", func() bool {
		pos, ok := riskMgr.Book().Get("BTCUSDT")
		return ok && pos.Side == risk.SideLong && pos.Quantity > 0
	})
}
