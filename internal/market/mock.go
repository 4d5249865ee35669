package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"signal-engine/internal/events"
)

// MockFeed generates synthetic random-walk bars for local development. Live
// aggregation does not depend on where bars come from, so the mock publishes
// the same Tick payloads a real feed adapter would.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
	Seed       int64 // optional; 0 means time-seeded

	prices map[string]float64
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	seed := m.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	m.prices = make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		m.prices[sym] = m.StartPrice
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				for _, sym := range m.Symbols {
					m.Bus.Publish(events.EventPriceBar, Tick{
						Symbol: sym,
						Bar:    m.nextBar(rng, sym, now),
					})
				}
			}
		}
	}()
}

func (m *MockFeed) nextBar(rng *rand.Rand, sym string, ts time.Time) Bar {
	open := m.prices[sym]
	close := open + (rng.Float64()*2-1)*m.Step
	if close <= 0 {
		close = open
	}
	m.prices[sym] = close

	high, low := open, close
	if close > open {
		high, low = close, open
	}
	return Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    50 + rng.Float64()*100,
	}
}
