package market

import "time"

// Bar is a single OHLCV candle. Bars are immutable once recorded; the feed
// produces them and every downstream consumer treats them read-only.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes extracts the close series from a bar slice.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Tick is a bar update for one symbol, published on the event bus.
type Tick struct {
	Symbol string
	Bar    Bar
}
