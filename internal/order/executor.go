package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"signal-engine/internal/events"
)

// Store is the persistence collaborator. Write failures are logged and
// swallowed at the call sites in Handle; the executor's own state stays
// correct without a working database.
type Store interface {
	SaveOrder(ctx context.Context, o Order) error
	UpdateOrderStatus(ctx context.Context, id, status string, fillPrice, fee float64) error
}

// Executor hands orders to the gateway, records the outcome, and
// publishes order lifecycle events on the bus. Rejected orders are
// reported and dropped, never requeued.
type Executor struct {
	gateway Gateway
	store   Store
	bus     *events.Bus
	limiter *rate.Limiter
}

// NewExecutor wires an executor. ordersPerSec caps the submission rate
// toward the gateway; zero disables the cap.
func NewExecutor(gateway Gateway, store Store, bus *events.Bus, ordersPerSec float64) *Executor {
	var limiter *rate.Limiter
	if ordersPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ordersPerSec), 1)
	}
	return &Executor{
		gateway: gateway,
		store:   store,
		bus:     bus,
		limiter: limiter,
	}
}

// Handle executes one order synchronously.
func (e *Executor) Handle(ctx context.Context, o Order) error {
	if o.ID == "" {
		return fmt.Errorf("order without id for %s", o.Symbol)
	}
	if e.gateway == nil {
		return fmt.Errorf("no gateway configured")
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	o.Status = StatusSubmitted
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	e.persist(ctx, o)
	e.publish(events.EventOrderSubmitted, o)

	fill, err := e.gateway.Place(ctx, o)
	if err != nil {
		o.Status = StatusRejected
		o.Note = err.Error()
		e.updateStatus(ctx, o.ID, StatusRejected, 0, 0)
		e.publish(events.EventOrderRejected, o)
		log.Printf("[order] ❌ %s %s %.4f %s rejected: %v", o.Side, o.Symbol, o.Qty, o.ID, err)
		return fmt.Errorf("place order %s: %w", o.ID, err)
	}

	o.Status = StatusFilled
	o.FillPrice = fill.Price
	o.Fee = fill.Fee
	e.updateStatus(ctx, o.ID, StatusFilled, fill.Price, fill.Fee)
	e.publish(events.EventOrderFilled, fill)
	log.Printf("[order] ✅ %s %s %.4f @ %.2f (fee %.4f)", o.Side, o.Symbol, o.Qty, fill.Price, fill.Fee)
	return nil
}

func (e *Executor) persist(ctx context.Context, o Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(ctx, o); err != nil {
		log.Printf("[order] persist failed for %s (continuing): %v", o.ID, err)
	}
}

func (e *Executor) updateStatus(ctx context.Context, id, status string, fillPrice, fee float64) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateOrderStatus(ctx, id, status, fillPrice, fee); err != nil {
		log.Printf("[order] status update failed for %s (continuing): %v", id, err)
	}
}

func (e *Executor) publish(event events.Event, payload any) {
	if e.bus != nil {
		e.bus.Publish(event, payload)
	}
}
