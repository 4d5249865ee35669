package order

import (
	"context"
	"log"
	"sync"
	"time"
)

// ExecutionResult is the outcome of one asynchronous execution.
type ExecutionResult struct {
	OrderID   string        `json:"order_id"`
	Success   bool          `json:"success"`
	Error     error         `json:"-"`
	ErrorMsg  string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// AsyncExecutor runs executions on a bounded worker pool so the
// scheduler never blocks on the gateway. Executions already in flight
// when the engine stops are not cancelled; Pending exposes them so the
// monitor can report orphaned requests instead of losing them.
type AsyncExecutor struct {
	executor *Executor
	resultCh chan ExecutionResult
	slots    chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending int
}

func NewAsyncExecutor(executor *Executor, workers int) *AsyncExecutor {
	if workers <= 0 {
		workers = 4
	}
	return &AsyncExecutor{
		executor: executor,
		resultCh: make(chan ExecutionResult, 100),
		slots:    make(chan struct{}, workers),
	}
}

// ExecuteAsync submits an order without waiting for the gateway.
func (a *AsyncExecutor) ExecuteAsync(ctx context.Context, o Order) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		log.Printf("[order] async executor closed, dropping order %s", o.ID)
		return
	}
	a.pending++
	a.wg.Add(1)
	a.mu.Unlock()

	a.slots <- struct{}{}

	go func() {
		defer a.wg.Done()
		defer func() {
			<-a.slots
			a.mu.Lock()
			a.pending--
			a.mu.Unlock()
		}()

		start := time.Now()
		err := a.executor.Handle(ctx, o)

		result := ExecutionResult{
			OrderID:   o.ID,
			Success:   err == nil,
			Error:     err,
			Latency:   time.Since(start),
			Timestamp: time.Now(),
		}
		if err != nil {
			result.ErrorMsg = err.Error()
		}

		select {
		case a.resultCh <- result:
		default:
			log.Printf("[order] result channel full, dropping result for %s", o.ID)
		}
	}()
}

// Results exposes execution outcomes for monitoring.
func (a *AsyncExecutor) Results() <-chan ExecutionResult {
	return a.resultCh
}

// Pending reports executions submitted but not yet finished.
func (a *AsyncExecutor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Stop refuses new submissions. In-flight executions keep running;
// the returned count is what was still outstanding at the moment of
// stopping. The results channel is closed once the last of them
// finishes, so consumers ranging over Results terminate.
func (a *AsyncExecutor) Stop() int {
	a.mu.Lock()
	orphaned := a.pending
	if a.closed {
		a.mu.Unlock()
		return orphaned
	}
	a.closed = true
	a.mu.Unlock()

	go func() {
		a.wg.Wait()
		close(a.resultCh)
	}()
	return orphaned
}

// WaitAll blocks until all in-flight executions have finished. Used by
// tests and graceful shutdown paths that can afford to wait.
func (a *AsyncExecutor) WaitAll() {
	a.wg.Wait()
}
