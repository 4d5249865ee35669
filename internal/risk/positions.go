package risk

import (
	"math"
	"sync"
)

// Book is the keyed store of live positions, one per symbol. It is
// owned by the engine instance; nothing else writes to it.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Open inserts (or replaces) the position for its symbol.
func (b *Book) Open(pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos.CurrentPrice = pos.EntryPrice
	pos.UnrealizedPnL = 0
	b.positions[pos.Symbol] = &pos
}

// Get returns a snapshot of the position for symbol.
func (b *Book) Get(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// List returns a snapshot of all open positions.
func (b *Book) List() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// MarkToMarket updates the position's current price and unrealized PnL.
func (b *Book) MarkToMarket(symbol string, price float64) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	p.CurrentPrice = price
	if p.Side == SideLong {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
	} else {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Quantity
	}
	return *p, true
}

// Close removes the position and returns its final snapshot.
func (b *Book) Close(symbol string) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	delete(b.positions, symbol)
	return *p, true
}

// TotalExposure is the summed notional of all open positions at their
// current prices.
func (b *Book) TotalExposure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		total += math.Abs(p.Quantity) * p.CurrentPrice
	}
	return total
}

// UnrealizedPnL is the summed mark-to-market PnL of all open positions.
func (b *Book) UnrealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// Len reports the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
