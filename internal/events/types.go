package events

// Event enumerates high-level topics inside the signal engine.
type Event string

const (
	EventPriceBar          Event = "price_bar"
	EventStrategySignal    Event = "strategy_signal"
	EventAggregateDecision Event = "aggregate_decision"
	EventRiskAlert         Event = "risk_alert"
	EventPositionChange    Event = "position_change"
	EventOrderSubmitted    Event = "order.submitted"
	EventOrderRejected     Event = "order.rejected"
	EventOrderFilled       Event = "order.filled"
)
