package risk

import (
	"time"
)

// Side of a live position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is one live holding, marked to market on every tick.
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Settings are the user's risk-management knobs. Percent fields are
// whole percents (2 means 2%).
type Settings struct {
	EnableRiskManagement bool    `json:"enable_risk_management"`
	MaxPositionSize      float64 `json:"max_position_size"`
	StopLossPercent      float64 `json:"stop_loss_percent"`
	TakeProfitPercent    float64 `json:"take_profit_percent"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
}

// DefaultSettings returns conservative defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		EnableRiskManagement: true,
		MaxPositionSize:      10,
		StopLossPercent:      2,
		TakeProfitPercent:    4,
		MaxDailyLoss:         500,
	}
}

// Metrics is a portfolio-level snapshot, recomputed on the risk
// interval. Transient: nothing here is persisted by the manager itself.
type Metrics struct {
	PortfolioValue float64   `json:"portfolio_value"`
	TotalExposure  float64   `json:"total_exposure"`
	DailyPnL       float64   `json:"daily_pnl"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	WinRate        float64   `json:"win_rate"`
	ProfitFactor   float64   `json:"profit_factor"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Alert severity levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Alert is a risk event published on the bus for the notification path.
type Alert struct {
	Level     string    `json:"level"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
