package strategy

import (
	"time"
)

// Action is the discrete recommendation a rule emits for a bar.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionShort Action = "short"
	ActionNone  Action = "none"
)

// Meta carries optional context attached to a signal.
type Meta struct {
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Signal is a decision emitted for one strategy instance at one point in time.
type Signal struct {
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // in [0, 1]
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
	Meta       Meta      `json:"meta"`
}

// Point is one rule evaluation for one bar. A rule returns exactly one
// point per input bar, so callers can line points up against the series.
type Point struct {
	Timestamp  time.Time
	Action     Action
	Price      float64
	Confidence float64
	Reason     string
}

// Signal converts a point into a full signal for the given instance.
func (pt Point) Signal(strategyID, symbol string) Signal {
	return Signal{
		StrategyID: strategyID,
		Symbol:     symbol,
		Action:     pt.Action,
		Confidence: pt.Confidence,
		Price:      pt.Price,
		Timestamp:  pt.Timestamp,
		Meta:       Meta{Reasoning: pt.Reason},
	}
}

// Params holds a template's parameter set as decoded from YAML or JSON.
// Numeric values may arrive as int or float64 depending on the decoder.
type Params map[string]any

// Int reads an integer parameter, falling back to def when absent.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Float reads a float parameter, falling back to def when absent.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}
