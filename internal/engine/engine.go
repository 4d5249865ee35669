package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signal-engine/internal/events"
	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/order"
	"signal-engine/internal/risk"
	"signal-engine/internal/strategy"
)

// SignalStore persists generated signals. Failures are logged and
// swallowed; the engine never depends on the write succeeding.
type SignalStore interface {
	SaveSignal(ctx context.Context, sig strategy.Signal) error
}

// AutoTradingSettings is the user-owned configuration for the live loop.
type AutoTradingSettings struct {
	Enabled           bool                `json:"enabled"`
	RiskManagement    risk.Settings       `json:"risk_management"`
	SignalAggregation AggregationSettings `json:"signal_aggregation"`
}

// Config sets the engine's symbols, intervals, and execution threshold.
type Config struct {
	Symbols        []string
	TickInterval   time.Duration
	SignalInterval time.Duration
	RiskInterval   time.Duration
	InitialCapital float64
	MinConfidence  float64 // aggregate decisions at or below this are ignored
}

// Deps are the engine's injected collaborators.
type Deps struct {
	Clock      Clock
	Bus        *events.Bus
	History    *market.History
	Indicators *indicators.Engine
	Risk       *risk.Manager
	Queue      *order.Queue
	Exec       *order.AsyncExecutor
	Store      SignalStore
}

// intent remembers why an order was submitted so the fill handler can
// apply it to the position book.
type intent struct {
	kind   string // "open" or "close"
	side   risk.Side
	reason string
}

// Engine runs the live loop: three periodic tasks (position
// mark/stop checks, signal generation, risk evaluation) plus bus-driven
// bar ingestion and fill application. One Engine per process context;
// all dependencies are injected so tests can run several side by side.
type Engine struct {
	cfg   Config
	clock Clock
	bus   *events.Bus
	hist  *market.History
	ind   *indicators.Engine
	risk  *risk.Manager
	queue *order.Queue
	exec  *order.AsyncExecutor
	store SignalStore

	mu           sync.RWMutex
	strategies   []strategy.Config
	aggregation  AggregationSettings
	weights      map[string]float64 // per-strategy defaults from config
	lastSignals  map[string][]strategy.Signal
	lastDecision map[string]Decision
	indicators   map[string]map[string]float64
	intents      map[string]intent
	realized     float64
	orphaned     int
	running      bool
	cancel       context.CancelFunc

	wg sync.WaitGroup

	tickBusy   atomic.Bool
	signalBusy atomic.Bool
	riskBusy   atomic.Bool
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.SignalInterval <= 0 {
		cfg.SignalInterval = 5 * time.Second
	}
	if cfg.RiskInterval <= 0 {
		cfg.RiskInterval = 10 * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.7
	}
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{
		cfg:          cfg,
		clock:        clock,
		bus:          deps.Bus,
		hist:         deps.History,
		ind:          deps.Indicators,
		risk:         deps.Risk,
		queue:        deps.Queue,
		exec:         deps.Exec,
		store:        deps.Store,
		aggregation:  AggregationSettings{Method: MethodMajority, MinimumSignals: 1},
		weights:      make(map[string]float64),
		lastSignals:  make(map[string][]strategy.Signal),
		lastDecision: make(map[string]Decision),
		indicators:   make(map[string]map[string]float64),
		intents:      make(map[string]intent),
	}
}

// SetStrategies replaces the enabled strategy set. Disabled entries are
// filtered out here so the signal task never sees them.
func (e *Engine) SetStrategies(configs []strategy.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = nil
	e.weights = make(map[string]float64)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		e.strategies = append(e.strategies, cfg)
		if cfg.Weight > 0 {
			e.weights[cfg.ID] = cfg.Weight
		}
	}
}

// Strategies returns the active strategy set.
func (e *Engine) Strategies() []strategy.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]strategy.Config, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// UpdateAutoTradingSettings applies a settings change. The aggregation
// method is validated here so a bad value is rejected at update time.
func (e *Engine) UpdateAutoTradingSettings(s AutoTradingSettings) error {
	if !ValidMethod(s.SignalAggregation.Method) {
		return fmt.Errorf("unsupported aggregation method %q", s.SignalAggregation.Method)
	}
	if s.SignalAggregation.MinimumSignals < 0 {
		return fmt.Errorf("minimum signals must not be negative")
	}
	e.risk.UpdateSettings(s.RiskManagement)
	e.risk.SetAutoTrading(s.Enabled)
	e.mu.Lock()
	e.aggregation = s.SignalAggregation
	e.mu.Unlock()
	log.Printf("[engine] auto trading settings updated: enabled=%v method=%s min_signals=%d",
		s.Enabled, s.SignalAggregation.Method, s.SignalAggregation.MinimumSignals)
	return nil
}

// AutoTradingSettings returns the current settings snapshot.
func (e *Engine) AutoTradingSettings() AutoTradingSettings {
	e.mu.RLock()
	agg := e.aggregation
	e.mu.RUnlock()
	return AutoTradingSettings{
		Enabled:           e.risk.AutoTradingEnabled(),
		RiskManagement:    e.risk.Settings(),
		SignalAggregation: agg,
	}
}

// Start launches the loop. Returns an error if already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	bars, cancelBars := e.bus.Subscribe(events.EventPriceBar, 256)
	fills, cancelFills := e.bus.Subscribe(events.EventOrderFilled, 64)
	rejects, cancelRejects := e.bus.Subscribe(events.EventOrderRejected, 64)

	// Tickers are created before the goroutines launch so a virtual
	// clock sees all three the moment Start returns.
	marketTicker := e.clock.NewTicker(e.cfg.TickInterval)
	signalTicker := e.clock.NewTicker(e.cfg.SignalInterval)
	riskTicker := e.clock.NewTicker(e.cfg.RiskInterval)

	e.wg.Add(5)
	go e.ingestLoop(ctx, bars, cancelBars)
	go e.fillLoop(ctx, fills, rejects, cancelFills, cancelRejects)
	go e.runTask(ctx, "market", marketTicker, &e.tickBusy, e.marketTick)
	go e.runTask(ctx, "signal", signalTicker, &e.signalBusy, e.generateSignals)
	go e.runTask(ctx, "risk", riskTicker, &e.riskBusy, e.riskCheck)

	log.Printf("[engine] started: symbols=%v tick=%v signal=%v risk=%v",
		e.cfg.Symbols, e.cfg.TickInterval, e.cfg.SignalInterval, e.cfg.RiskInterval)
	return nil
}

// Stop halts the timers immediately. Executions already handed to the
// gateway are not cancelled; the count still outstanding is recorded
// and returned so callers can surface them as orphaned.
func (e *Engine) Stop() int {
	e.mu.Lock()
	if !e.running {
		orphaned := e.orphaned
		e.mu.Unlock()
		return orphaned
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()

	orphaned := 0
	if e.exec != nil {
		orphaned = e.exec.Stop()
	}
	e.mu.Lock()
	e.orphaned = orphaned
	e.mu.Unlock()

	if orphaned > 0 {
		log.Printf("[engine] stopped with %d orphaned execution(s) still in flight", orphaned)
	} else {
		log.Printf("[engine] stopped")
	}
	return orphaned
}

// runTask drives one periodic task. A tick that arrives while the
// previous body is still running is skipped, so a slow external call
// can never stack re-entrant invocations of the same task.
func (e *Engine) runTask(ctx context.Context, name string, t Ticker, busy *atomic.Bool, fn func(context.Context)) {
	defer e.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if !busy.CompareAndSwap(false, true) {
				log.Printf("[engine] %s task still busy, skipping tick", name)
				continue
			}
			fn(ctx)
			busy.Store(false)
		}
	}
}

// ingestLoop appends incoming bars to the history window.
func (e *Engine) ingestLoop(ctx context.Context, bars <-chan any, cancel func()) {
	defer e.wg.Done()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-bars:
			if !ok {
				return
			}
			if tick, ok := msg.(market.Tick); ok {
				e.hist.Append(tick.Symbol, tick.Bar)
				if e.ind != nil {
					vals := e.ind.Update(tick.Symbol, tick.Bar.Close)
					e.mu.Lock()
					e.indicators[tick.Symbol] = vals
					e.mu.Unlock()
				}
			}
		}
	}
}

// fillLoop applies order outcomes to the position book.
func (e *Engine) fillLoop(ctx context.Context, fills, rejects <-chan any, cancelFills, cancelRejects func()) {
	defer e.wg.Done()
	defer cancelFills()
	defer cancelRejects()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-fills:
			if !ok {
				return
			}
			if fill, ok := msg.(order.Fill); ok {
				e.applyFill(fill)
			}
		case msg, ok := <-rejects:
			if !ok {
				return
			}
			// Rejected orders are discarded, never requeued.
			if o, ok := msg.(order.Order); ok {
				e.mu.Lock()
				delete(e.intents, o.ID)
				e.mu.Unlock()
			}
		}
	}
}

func (e *Engine) applyFill(fill order.Fill) {
	e.mu.Lock()
	in, ok := e.intents[fill.OrderID]
	if ok {
		delete(e.intents, fill.OrderID)
	}
	e.mu.Unlock()
	if !ok {
		log.Printf("[engine] fill for unknown order %s ignored", fill.OrderID)
		return
	}

	book := e.risk.Book()
	switch in.kind {
	case "open":
		pos := risk.Position{
			Symbol:     fill.Symbol,
			Side:       in.side,
			Quantity:   fill.Qty,
			EntryPrice: fill.Price,
			OpenedAt:   fill.FilledAt,
		}
		book.Open(pos)
		e.addRealized(-fill.Fee)
		e.bus.Publish(events.EventPositionChange, pos)
		log.Printf("[engine] opened %s %s %.4f @ %.2f", in.side, fill.Symbol, fill.Qty, fill.Price)

	case "close":
		pos, found := book.Close(fill.Symbol)
		if !found {
			log.Printf("[engine] close fill for %s but no open position", fill.Symbol)
			return
		}
		pnl := (fill.Price - pos.EntryPrice) * pos.Quantity
		if pos.Side == risk.SideShort {
			pnl = (pos.EntryPrice - fill.Price) * pos.Quantity
		}
		pnl -= fill.Fee
		e.addRealized(pnl)
		e.risk.RecordRealized(pnl)
		e.bus.Publish(events.EventPositionChange, pos)
		log.Printf("[engine] closed %s %s %.4f @ %.2f pnl=%.2f (%s)",
			pos.Side, fill.Symbol, pos.Quantity, fill.Price, pnl, in.reason)
	}
}

func (e *Engine) addRealized(delta float64) {
	e.mu.Lock()
	e.realized += delta
	e.mu.Unlock()
}

// PortfolioValue is initial capital plus realized and unrealized PnL.
func (e *Engine) PortfolioValue() float64 {
	e.mu.RLock()
	realized := e.realized
	e.mu.RUnlock()
	return e.cfg.InitialCapital + realized + e.risk.Book().UnrealizedPnL()
}

// marketTick marks open positions to the latest close and fires
// stop-loss / take-profit exits.
func (e *Engine) marketTick(ctx context.Context) {
	book := e.risk.Book()
	for _, pos := range book.List() {
		price, ok := e.hist.LastClose(pos.Symbol)
		if !ok {
			continue
		}
		marked, ok := book.MarkToMarket(pos.Symbol, price)
		if !ok {
			continue
		}
		switch {
		case e.risk.ShouldTriggerStopLoss(marked, price):
			e.submitClose(ctx, marked, price, "stop loss")
		case e.risk.ShouldTriggerTakeProfit(marked, price):
			e.submitClose(ctx, marked, price, "take profit")
		}
	}
}

// generateSignals runs every enabled strategy against the latest bar
// window, aggregates per symbol, and executes actionable decisions.
func (e *Engine) generateSignals(ctx context.Context) {
	e.mu.RLock()
	strategies := e.strategies
	agg := e.aggregation
	if len(agg.Weights) == 0 {
		agg.Weights = e.weights
	}
	e.mu.RUnlock()

	riskSettings := e.risk.Settings()

	for _, symbol := range e.cfg.Symbols {
		bars := e.hist.Window(symbol)
		if len(bars) == 0 {
			continue
		}

		var sigs []strategy.Signal
		for _, cfg := range strategies {
			if cfg.Symbol != symbol {
				continue
			}
			points, err := strategy.Evaluate(cfg.Template, bars, cfg.Parameters)
			if err != nil {
				// Configs are validated at load time, so this is a
				// genuine defect worth shouting about.
				log.Printf("[engine] strategy %s failed: %v", cfg.ID, err)
				continue
			}
			pt := points[len(points)-1]
			sig := pt.Signal(cfg.ID, symbol)
			attachStops(&sig, riskSettings)

			if e.store != nil {
				if err := e.store.SaveSignal(ctx, sig); err != nil {
					log.Printf("[engine] signal persist failed (continuing): %v", err)
				}
			}
			e.bus.Publish(events.EventStrategySignal, sig)
			sigs = append(sigs, sig)
		}

		dec, err := Aggregate(symbol, sigs, agg)
		if err != nil {
			log.Printf("[engine] aggregation failed for %s: %v", symbol, err)
			continue
		}
		if dec.Timestamp.IsZero() {
			dec.Timestamp = e.clock.Now()
		}

		e.mu.Lock()
		e.lastSignals[symbol] = sigs
		e.lastDecision[symbol] = dec
		e.mu.Unlock()

		e.bus.Publish(events.EventAggregateDecision, dec)
		e.maybeExecute(ctx, dec)
	}
}

// attachStops derives stop-loss / take-profit levels from the risk
// settings for actionable signals.
func attachStops(sig *strategy.Signal, s risk.Settings) {
	if sig.Action == strategy.ActionNone || !s.EnableRiskManagement {
		return
	}
	sl := s.StopLossPercent / 100
	tp := s.TakeProfitPercent / 100
	if sig.Action == strategy.ActionBuy {
		sig.Meta.StopLoss = sig.Price * (1 - sl)
		sig.Meta.TakeProfit = sig.Price * (1 + tp)
	} else {
		sig.Meta.StopLoss = sig.Price * (1 + sl)
		sig.Meta.TakeProfit = sig.Price * (1 - tp)
	}
}

// canSubmit reports whether the engine has an execution path wired.
func (e *Engine) canSubmit() bool {
	return e.queue != nil || e.exec != nil
}

// submitOrder hands an order to execution: through the queue when one
// is wired, falling back to the executor directly.
func (e *Engine) submitOrder(ctx context.Context, o order.Order) {
	if e.queue != nil {
		e.queue.Enqueue(o)
		return
	}
	e.exec.ExecuteAsync(ctx, o)
}

// maybeExecute turns an actionable decision into an order request.
func (e *Engine) maybeExecute(ctx context.Context, dec Decision) {
	if dec.Action == strategy.ActionNone || !e.canSubmit() {
		return
	}
	if !e.risk.AutoTradingEnabled() {
		return
	}
	if dec.Confidence <= e.cfg.MinConfidence {
		return
	}

	side := risk.SideLong
	if dec.Action == strategy.ActionShort {
		side = risk.SideShort
	}

	book := e.risk.Book()
	if pos, ok := book.Get(dec.Symbol); ok {
		if pos.Side == side {
			return // already positioned this way
		}
		// Opposing decision: flatten first, reconsider next interval.
		e.submitClose(ctx, pos, dec.Price, "opposing aggregate decision")
		return
	}

	sig := strategy.Signal{
		Symbol:     dec.Symbol,
		Action:     dec.Action,
		Confidence: dec.Confidence,
		Price:      dec.Price,
		Timestamp:  dec.Timestamp,
	}
	attachStops(&sig, e.risk.Settings())

	size := e.risk.CalculatePositionSize(sig, e.PortfolioValue())
	if size <= 0 {
		return
	}

	o := order.Order{
		ID:          uuid.NewString(),
		StrategyID:  "aggregate",
		Symbol:      dec.Symbol,
		Side:        order.SideBuy,
		Type:        order.TypeMarket,
		Qty:         size,
		Price:       dec.Price,
		TimeInForce: "GTC",
		Status:      order.StatusNew,
		CreatedAt:   e.clock.Now(),
	}
	if side == risk.SideShort {
		o.Side = order.SideSell
	}

	e.mu.Lock()
	e.intents[o.ID] = intent{kind: "open", side: side}
	e.mu.Unlock()

	e.submitOrder(ctx, o)
}

func (e *Engine) submitClose(ctx context.Context, pos risk.Position, price float64, reason string) {
	if !e.canSubmit() {
		return
	}
	o := order.Order{
		ID:          uuid.NewString(),
		Symbol:      pos.Symbol,
		Side:        order.SideSell,
		Type:        order.TypeMarket,
		Qty:         pos.Quantity,
		Price:       price,
		TimeInForce: "GTC",
		Status:      order.StatusNew,
		Note:        reason,
		CreatedAt:   e.clock.Now(),
	}
	if pos.Side == risk.SideShort {
		o.Side = order.SideBuy
	}

	e.mu.Lock()
	e.intents[o.ID] = intent{kind: "close", side: pos.Side, reason: reason}
	e.mu.Unlock()

	e.submitOrder(ctx, o)
}

// riskCheck samples equity and enforces the daily loss limit.
func (e *Engine) riskCheck(ctx context.Context) {
	pv := e.PortfolioValue()
	e.risk.ObserveEquity(pv)
	met := e.risk.Metrics()
	e.risk.CheckRiskLimits(met)
}

// LastSignals returns the most recent per-strategy signals for symbol.
func (e *Engine) LastSignals(symbol string) []strategy.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sigs := e.lastSignals[symbol]
	out := make([]strategy.Signal, len(sigs))
	copy(out, sigs)
	return out
}

// Indicators returns the latest computed indicator values for symbol.
func (e *Engine) Indicators(symbol string) map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src := e.indicators[symbol]
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// LastDecision returns the most recent aggregate decision for symbol.
func (e *Engine) LastDecision(symbol string) (Decision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dec, ok := e.lastDecision[symbol]
	return dec, ok
}

// Status is the monitoring snapshot of the engine.
type Status struct {
	Running            bool     `json:"running"`
	Symbols            []string `json:"symbols"`
	Strategies         int      `json:"strategies"`
	AutoTrading        bool     `json:"auto_trading"`
	PortfolioValue     float64  `json:"portfolio_value"`
	OpenPositions      int      `json:"open_positions"`
	PendingExecutions  int      `json:"pending_executions"`
	OrphanedExecutions int      `json:"orphaned_executions"`
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	running := e.running
	strategies := len(e.strategies)
	orphaned := e.orphaned
	e.mu.RUnlock()

	pending := 0
	if e.exec != nil {
		pending = e.exec.Pending()
	}
	return Status{
		Running:            running,
		Symbols:            e.cfg.Symbols,
		Strategies:         strategies,
		AutoTrading:        e.risk.AutoTradingEnabled(),
		PortfolioValue:     e.PortfolioValue(),
		OpenPositions:      e.risk.Book().Len(),
		PendingExecutions:  pending,
		OrphanedExecutions: orphaned,
	}
}
