package order

import "time"

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types.
const (
	TypeMarket = "MARKET"
	TypeLimit  = "LIMIT"
)

// Order statuses.
const (
	StatusNew       = "NEW"
	StatusSubmitted = "SUBMITTED"
	StatusFilled    = "FILLED"
	StatusRejected  = "REJECTED"
)

// Order is an execution request handed to the gateway.
type Order struct {
	ID          string    `json:"id"`
	StrategyID  string    `json:"strategy_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Type        string    `json:"type"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"` // reference price for market orders
	FillPrice   float64   `json:"fill_price,omitempty"`
	Fee         float64   `json:"fee,omitempty"`
	TimeInForce string    `json:"time_in_force"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Fill is the gateway's report of an executed order.
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Qty      float64   `json:"qty"`
	Price    float64   `json:"price"`
	Fee      float64   `json:"fee"`
	FilledAt time.Time `json:"filled_at"`
}
