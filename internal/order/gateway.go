package order

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Gateway is the external order-placement collaborator. Place either
// returns a fill or an error; the executor never retries a rejection.
type Gateway interface {
	Place(ctx context.Context, o Order) (Fill, error)
}

// PaperGateway fills market orders immediately at the order's reference
// price plus simulated slippage and fee. It keeps a running cash
// balance so local runs behave like a funded account.
type PaperGateway struct {
	mu      sync.Mutex
	balance float64
	feeRate float64 // decimal, e.g. 0.0004 = 4 bps
	slipBps float64 // basis points applied against the taker
	rng     *rand.Rand
}

// NewPaperGateway seeds the simulated account. A zero seed gives a
// time-based one; tests pass a fixed seed for reproducible fills.
func NewPaperGateway(balance, feeRate, slippageBps float64, seed int64) *PaperGateway {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperGateway{
		balance: balance,
		feeRate: feeRate,
		slipBps: slippageBps,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Balance returns the remaining simulated cash.
func (g *PaperGateway) Balance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

func (g *PaperGateway) Place(ctx context.Context, o Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if o.Qty <= 0 {
		return Fill{}, fmt.Errorf("paper: non-positive quantity %.4f", o.Qty)
	}
	if o.Price <= 0 {
		return Fill{}, fmt.Errorf("paper: order %s has no reference price", o.ID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Slippage always works against the taker.
	price := o.Price
	if g.slipBps > 0 {
		noise := g.rng.Float64() * g.slipBps / 10000.0
		if strings.EqualFold(o.Side, SideBuy) {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	notional := price * o.Qty
	fee := notional * g.feeRate

	if strings.EqualFold(o.Side, SideBuy) {
		if notional+fee > g.balance {
			return Fill{}, fmt.Errorf("paper: insufficient balance %.2f for notional %.2f", g.balance, notional+fee)
		}
		g.balance -= notional + fee
	} else {
		g.balance += notional - fee
	}

	return Fill{
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Qty:      o.Qty,
		Price:    price,
		Fee:      fee,
		FilledAt: time.Now(),
	}, nil
}
