package indicators

import "sync"

// Engine maintains per-symbol close windows and exposes the latest values of
// the core indicators to the live loop.
type Engine struct {
	mu     sync.Mutex
	closes map[string][]float64
	window int
	fastMA int
	slowMA int
	rsi    int
}

// NewEngine builds an indicator engine. The window is grown to cover the
// slowest configured period.
func NewEngine(fastMA, slowMA, rsiPeriod, window int) *Engine {
	if window < slowMA+1 {
		window = slowMA + 1
	}
	if window < rsiPeriod+1 {
		window = rsiPeriod + 1
	}
	return &Engine{
		closes: make(map[string][]float64),
		window: window,
		fastMA: fastMA,
		slowMA: slowMA,
		rsi:    rsiPeriod,
	}
}

// Update ingests a new close and returns the latest computed values. Values
// that cannot be computed yet (insufficient history) are reported as 0.
func (e *Engine) Update(symbol string, close float64) map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	arr := append(e.closes[symbol], close)
	if len(arr) > e.window {
		arr = arr[len(arr)-e.window:]
	}
	e.closes[symbol] = arr

	return map[string]float64{
		"ma_fast": SMA(arr, e.fastMA),
		"ma_slow": SMA(arr, e.slowMA),
		"rsi":     LatestRSI(arr, e.rsi),
	}
}
