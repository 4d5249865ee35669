package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"signal-engine/internal/events"
)

type stubGateway struct {
	mu     sync.Mutex
	placed []Order
	err    error
	delay  time.Duration
}

func (g *stubGateway) Place(ctx context.Context, o Order) (Fill, error) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	g.placed = append(g.placed, o)
	g.mu.Unlock()
	if g.err != nil {
		return Fill{}, g.err
	}
	return Fill{OrderID: o.ID, Symbol: o.Symbol, Side: o.Side, Qty: o.Qty, Price: o.Price, FilledAt: time.Now()}, nil
}

func (g *stubGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.placed)
}

type stubStore struct {
	mu       sync.Mutex
	saved    []Order
	statuses map[string]string
	failAll  bool
}

func newStubStore() *stubStore {
	return &stubStore{statuses: make(map[string]string)}
}

func (s *stubStore) SaveOrder(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("disk full")
	}
	s.saved = append(s.saved, o)
	return nil
}

func (s *stubStore) UpdateOrderStatus(ctx context.Context, id, status string, fillPrice, fee float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("disk full")
	}
	s.statuses[id] = status
	return nil
}

func testOrder(id string) Order {
	return Order{
		ID:          id,
		Symbol:      "BTCUSDT",
		Side:        SideBuy,
		Type:        TypeMarket,
		Qty:         1,
		Price:       100,
		TimeInForce: "GTC",
		Status:      StatusNew,
	}
}

func TestExecutorFillPath(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	fills, cancel := bus.Subscribe(events.EventOrderFilled, 4)
	defer cancel()

	gw := &stubGateway{}
	store := newStubStore()
	exec := NewExecutor(gw, store, bus, 0)

	if err := exec.Handle(context.Background(), testOrder("o-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if gw.count() != 1 {
		t.Fatalf("gateway saw %d orders, expected 1", gw.count())
	}
	if store.statuses["o-1"] != StatusFilled {
		t.Fatalf("stored status %q, expected FILLED", store.statuses["o-1"])
	}

	select {
	case got := <-fills:
		fill, ok := got.(Fill)
		if !ok || fill.OrderID != "o-1" {
			t.Fatalf("unexpected fill payload: %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no fill event published")
	}
}

func TestExecutorRejectionIsNotRetried(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	rejected, cancel := bus.Subscribe(events.EventOrderRejected, 4)
	defer cancel()

	gw := &stubGateway{err: errors.New("margin check failed")}
	store := newStubStore()
	exec := NewExecutor(gw, store, bus, 0)

	err := exec.Handle(context.Background(), testOrder("o-2"))
	if err == nil {
		t.Fatal("expected error from rejected order")
	}
	if !strings.Contains(err.Error(), "margin check failed") {
		t.Fatalf("error should wrap the gateway cause, got %v", err)
	}

	if gw.count() != 1 {
		t.Fatalf("gateway saw %d placements, expected exactly 1 (no retry)", gw.count())
	}
	if store.statuses["o-2"] != StatusRejected {
		t.Fatalf("stored status %q, expected REJECTED", store.statuses["o-2"])
	}

	select {
	case got := <-rejected:
		o, ok := got.(Order)
		if !ok || o.Status != StatusRejected {
			t.Fatalf("unexpected rejection payload: %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no rejection event published")
	}
}

func TestExecutorSurvivesStoreFailure(t *testing.T) {
	gw := &stubGateway{}
	store := newStubStore()
	store.failAll = true
	exec := NewExecutor(gw, store, nil, 0)

	// Persistence errors are swallowed; the order still executes.
	if err := exec.Handle(context.Background(), testOrder("o-3")); err != nil {
		t.Fatalf("handle should not propagate store errors: %v", err)
	}
	if gw.count() != 1 {
		t.Fatal("order should still reach the gateway")
	}
}

func TestPaperGatewayBalanceAndSlippage(t *testing.T) {
	gw := NewPaperGateway(10000, 0.001, 10, 42)

	fill, err := gw.Place(context.Background(), testOrder("p-1"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if fill.Price < 100 || fill.Price > 100.1 {
		t.Fatalf("buy fill price %v outside slippage envelope", fill.Price)
	}
	if fill.Fee <= 0 {
		t.Fatalf("fee %v, expected positive", fill.Fee)
	}
	if gw.Balance() >= 10000 {
		t.Fatalf("balance %v should shrink after a buy", gw.Balance())
	}

	// Spending beyond the balance is rejected.
	big := testOrder("p-2")
	big.Qty = 1000
	if _, err := gw.Place(context.Background(), big); err == nil {
		t.Fatal("expected insufficient balance rejection")
	}
}

func TestAsyncExecutorOrphanTracking(t *testing.T) {
	gw := &stubGateway{delay: 100 * time.Millisecond}
	exec := NewExecutor(gw, nil, nil, 0)
	async := NewAsyncExecutor(exec, 2)

	async.ExecuteAsync(context.Background(), testOrder("a-1"))
	async.ExecuteAsync(context.Background(), testOrder("a-2"))

	orphaned := async.Stop()
	if orphaned != 2 {
		t.Fatalf("orphaned=%d, expected both in-flight executions reported", orphaned)
	}

	// Stop does not cancel them: both still complete.
	async.WaitAll()
	if gw.count() != 2 {
		t.Fatalf("gateway saw %d orders, expected 2 completions after stop", gw.count())
	}
	if async.Pending() != 0 {
		t.Fatalf("pending=%d after drain, expected 0", async.Pending())
	}

	// New submissions after stop are dropped.
	async.ExecuteAsync(context.Background(), testOrder("a-3"))
	async.WaitAll()
	if gw.count() != 2 {
		t.Fatal("submission after stop should be dropped")
	}

	// Once the stragglers finished, Stop closes the results channel so
	// consumers ranging over it terminate.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range async.Results() {
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("results channel should close after stop")
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(8)
	q.Enqueue(testOrder("q-1"))
	q.Enqueue(testOrder("q-2"))
	q.Close()

	var seen []string
	q.Drain(context.Background(), func(o Order) {
		seen = append(seen, o.ID)
	})
	if len(seen) != 2 || seen[0] != "q-1" || seen[1] != "q-2" {
		t.Fatalf("drained %v, expected [q-1 q-2] in order", seen)
	}
}
