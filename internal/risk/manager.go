package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"signal-engine/internal/events"
	"signal-engine/internal/strategy"
)

// Fraction of portfolio value risked per trade.
const riskPerTrade = 0.01

// Bounded history of equity returns kept for the Sharpe estimate.
const maxReturnSamples = 512

// Manager owns the live risk state: settings, the position book, daily
// realized PnL, and the auto-trading kill switch. All methods are safe
// for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	settings Settings
	book     *Book
	bus      *events.Bus

	autoTrading bool

	dailyPnL float64
	wins     int
	losses   int
	winSum   float64
	lossSum  float64

	peakEquity  float64
	maxDrawdown float64 // percent
	prevEquity  float64
	returns     []float64
}

func NewManager(settings Settings, book *Book, bus *events.Bus) *Manager {
	log.Printf("[risk] manager initialized: stop_loss=%.1f%% take_profit=%.1f%% max_daily_loss=%.2f",
		settings.StopLossPercent, settings.TakeProfitPercent, settings.MaxDailyLoss)
	return &Manager{
		settings: settings,
		book:     book,
		bus:      bus,
	}
}

// Book returns the position store the manager watches.
func (m *Manager) Book() *Book {
	return m.book
}

// Settings returns a copy of the current risk settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings replaces the risk settings.
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// AutoTradingEnabled reports whether automated execution is allowed.
func (m *Manager) AutoTradingEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoTrading
}

// SetAutoTrading flips automated execution on or off. This is the only
// way to re-enable after the kill switch has tripped; the manager never
// re-enables on its own.
func (m *Manager) SetAutoTrading(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoTrading = enabled
	log.Printf("[risk] auto trading set to %v", enabled)
}

// ShouldTriggerStopLoss reports whether the position's stop level is
// breached at price. Always false while risk management is disabled.
func (m *Manager) ShouldTriggerStopLoss(pos Position, price float64) bool {
	m.mu.RLock()
	s := m.settings
	m.mu.RUnlock()

	if !s.EnableRiskManagement || s.StopLossPercent <= 0 {
		return false
	}
	if pos.Side == SideLong {
		return price <= pos.EntryPrice*(1-s.StopLossPercent/100)
	}
	return price >= pos.EntryPrice*(1+s.StopLossPercent/100)
}

// ShouldTriggerTakeProfit reports whether the position reached its
// profit target at price.
func (m *Manager) ShouldTriggerTakeProfit(pos Position, price float64) bool {
	m.mu.RLock()
	s := m.settings
	m.mu.RUnlock()

	if !s.EnableRiskManagement || s.TakeProfitPercent <= 0 {
		return false
	}
	if pos.Side == SideLong {
		return price >= pos.EntryPrice*(1+s.TakeProfitPercent/100)
	}
	return price <= pos.EntryPrice*(1-s.TakeProfitPercent/100)
}

// CalculatePositionSize sizes an entry so that hitting the stop loses
// about 1% of portfolio value, clamped to MaxPositionSize. The stop
// distance comes from the signal's metadata when present, otherwise
// from the configured stop-loss percent.
func (m *Manager) CalculatePositionSize(sig strategy.Signal, portfolioValue float64) float64 {
	m.mu.RLock()
	s := m.settings
	m.mu.RUnlock()

	if sig.Price <= 0 || portfolioValue <= 0 {
		return 0
	}

	stopDistance := 0.0
	if sig.Meta.StopLoss > 0 {
		stopDistance = math.Abs(sig.Price - sig.Meta.StopLoss)
	} else if s.StopLossPercent > 0 {
		stopDistance = sig.Price * s.StopLossPercent / 100
	}
	if stopDistance <= 0 {
		return 0
	}

	size := portfolioValue * riskPerTrade / stopDistance
	if s.MaxPositionSize > 0 && size > s.MaxPositionSize {
		size = s.MaxPositionSize
	}
	return size
}

// RecordRealized books a realized PnL amount into the daily totals.
func (m *Manager) RecordRealized(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL += pnl
	if pnl > 0 {
		m.wins++
		m.winSum += pnl
	} else if pnl < 0 {
		m.losses++
		m.lossSum += -pnl
	}
}

// ResetDaily clears the daily counters. Call at the start of a new
// trading day.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.Printf("[risk] daily reset: pnl=%.2f wins=%d losses=%d", m.dailyPnL, m.wins, m.losses)
	m.dailyPnL = 0
}

// ObserveEquity records a portfolio-value sample, feeding the running
// drawdown peak and the return series behind the Sharpe estimate.
func (m *Manager) ObserveEquity(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value > m.peakEquity {
		m.peakEquity = value
	}
	if m.peakEquity > 0 {
		if dd := (m.peakEquity - value) / m.peakEquity * 100; dd > m.maxDrawdown {
			m.maxDrawdown = dd
		}
	}

	if m.prevEquity > 0 {
		m.returns = append(m.returns, (value-m.prevEquity)/m.prevEquity)
		if len(m.returns) > maxReturnSamples {
			m.returns = m.returns[1:]
		}
	}
	m.prevEquity = value
}

// Metrics assembles the current portfolio snapshot.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	met := Metrics{
		PortfolioValue: m.prevEquity,
		TotalExposure:  m.book.TotalExposure(),
		DailyPnL:       m.dailyPnL,
		MaxDrawdown:    m.maxDrawdown,
		SharpeRatio:    sharpe(m.returns),
		UpdatedAt:      time.Now(),
	}
	if closed := m.wins + m.losses; closed > 0 {
		met.WinRate = float64(m.wins) / float64(closed)
	}
	if m.losses > 0 && m.lossSum > 0 && m.wins > 0 {
		avgWin := m.winSum / float64(m.wins)
		avgLoss := m.lossSum / float64(m.losses)
		met.ProfitFactor = avgWin / avgLoss
	}
	return met
}

// CheckRiskLimits trips the kill switch when the daily loss limit is
// breached. One-way: tripping disables auto trading and only an
// explicit SetAutoTrading(true) brings it back. Returns true when the
// switch tripped on this call.
func (m *Manager) CheckRiskLimits(met Metrics) bool {
	m.mu.Lock()
	s := m.settings
	tripped := s.MaxDailyLoss > 0 && math.Abs(met.DailyPnL) > s.MaxDailyLoss
	if tripped {
		m.autoTrading = false
	}
	m.mu.Unlock()

	if !tripped {
		return false
	}

	msg := fmt.Sprintf("daily loss limit breached: |%.2f| > %.2f, auto trading disabled", met.DailyPnL, s.MaxDailyLoss)
	log.Printf("[risk] CRITICAL: %s", msg)
	if m.bus != nil {
		m.bus.Publish(events.EventRiskAlert, Alert{
			Level:     LevelCritical,
			Code:      "daily_loss_limit",
			Message:   msg,
			Timestamp: time.Now(),
		})
	}
	return true
}

// sharpe is the mean over standard deviation of the sampled returns.
// Zero when there is not enough history to say anything.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}
