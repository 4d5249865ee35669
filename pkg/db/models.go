package db

import "time"

// SignalRow is one archived signal.
type SignalRow struct {
	ID         int64     `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Price      float64   `json:"price"`
	Reasoning  string    `json:"reasoning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderRow is one stored order.
type OrderRow struct {
	ID          string    `json:"id"`
	StrategyID  string    `json:"strategy_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Type        string    `json:"type"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	FillPrice   float64   `json:"fill_price"`
	Fee         float64   `json:"fee"`
	TimeInForce string    `json:"time_in_force"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BacktestRow is one stored backtest run; Result holds the full result
// serialized as JSON.
type BacktestRow struct {
	ID             int64     `json:"id"`
	StrategyID     string    `json:"strategy_id"`
	Template       string    `json:"template"`
	Symbol         string    `json:"symbol"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	Result         string    `json:"result"`
	CreatedAt      time.Time `json:"created_at"`
}

// AlertRow is one stored risk alert.
type AlertRow struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
