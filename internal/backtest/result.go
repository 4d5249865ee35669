package backtest

import (
	"time"
)

// Trade side within a backtest run.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Trade statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Trade is one round trip (or the still-open leg) in a backtest run.
// IDs are sequential within the run so identical inputs produce
// identical results.
type Trade struct {
	ID         int       `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
}

// EquityPoint is the portfolio value at one bar, realized capital plus
// the mark-to-market value of any open trade.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Performance summarizes a completed run.
type Performance struct {
	TotalTrades        int     `json:"total_trades"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`
	WinRate            float64 `json:"win_rate"`
	TotalReturn        float64 `json:"total_return"`
	TotalReturnPercent float64 `json:"total_return_percent"`
	MaxDrawdown        float64 `json:"max_drawdown"` // percent decline from running peak
	ProfitFactor       float64 `json:"profit_factor"`
	AvgWin             float64 `json:"avg_win"`
	AvgLoss            float64 `json:"avg_loss"` // mean absolute loss
}

// Period is the time span covered by the input series.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result is the full outcome of one backtest run. Immutable after Run
// returns it.
type Result struct {
	StrategyID     string        `json:"strategy_id"`
	Template       string        `json:"template"`
	Symbol         string        `json:"symbol"`
	Period         Period        `json:"period"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Performance    Performance   `json:"performance"`
}
