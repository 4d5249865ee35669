package market

import "sync"

// History keeps a bounded per-symbol window of recent bars for the live loop.
// Strategies evaluate against a snapshot of this window, never the live slice.
type History struct {
	mu    sync.RWMutex
	bars  map[string][]Bar
	limit int
}

// NewHistory builds a history with the given per-symbol window size.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 500
	}
	return &History{
		bars:  make(map[string][]Bar),
		limit: limit,
	}
}

// Append records a new bar for a symbol, evicting the oldest when the window
// is full.
func (h *History) Append(symbol string, b Bar) {
	h.mu.Lock()
	defer h.mu.Unlock()

	arr := append(h.bars[symbol], b)
	if len(arr) > h.limit {
		arr = arr[len(arr)-h.limit:]
	}
	h.bars[symbol] = arr
}

// Window returns a copy of the most recent bars for a symbol.
func (h *History) Window(symbol string) []Bar {
	h.mu.RLock()
	defer h.mu.RUnlock()

	src := h.bars[symbol]
	out := make([]Bar, len(src))
	copy(out, src)
	return out
}

// Len reports how many bars are buffered for a symbol.
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bars[symbol])
}

// LastClose returns the latest close for a symbol.
func (h *History) LastClose(symbol string) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	arr := h.bars[symbol]
	if len(arr) == 0 {
		return 0, false
	}
	return arr[len(arr)-1].Close, true
}

// Symbols lists all symbols with at least one buffered bar.
func (h *History) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.bars))
	for s := range h.bars {
		out = append(out, s)
	}
	return out
}
