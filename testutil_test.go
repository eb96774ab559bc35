package iosched

import (
	"sync"
	"sync/atomic"
	"time"
)

// mockReactor is a Reactor driven entirely by the test: operations handed to
// deliver are appended to the scheduler's out-queue on the next Run. It
// honours the blocking budget and the interrupt latch like a real demux.
type mockReactor struct {
	mu      sync.Mutex
	pending OpQueue

	interrupt chan struct{}
	ready     chan struct{}

	runs       atomic.Int64
	interrupts atomic.Int64
	lastBlock  atomic.Int64
}

func newMockReactor() *mockReactor {
	return &mockReactor{
		interrupt: make(chan struct{}, 1),
		ready:     make(chan struct{}, 1),
	}
}

// deliver queues op for the next Run and wakes a blocked Run.
func (r *mockReactor) deliver(op Operation) {
	r.mu.Lock()
	r.pending.Push(op)
	r.mu.Unlock()
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

func (r *mockReactor) Run(blockUsec int64, ops *OpQueue) {
	r.runs.Add(1)
	r.lastBlock.Store(blockUsec)
	if blockUsec != 0 {
		var timeout <-chan time.Time
		if blockUsec > 0 {
			t := time.NewTimer(time.Duration(blockUsec) * time.Microsecond)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case <-r.ready:
		case <-r.interrupt:
		case <-timeout:
		}
	}
	r.mu.Lock()
	ops.PushQueue(&r.pending)
	r.mu.Unlock()
}

func (r *mockReactor) Interrupt() {
	r.interrupts.Add(1)
	select {
	case r.interrupt <- struct{}{}:
	default:
	}
}

func (r *mockReactor) Shutdown() {}

// testOp is a completion record whose behaviour is supplied by the test.
type testOp struct {
	OpBase
	complete func(op *testOp, s *Scheduler, err error, taskResult int)
	destroy  func(op *testOp)
}

func (o *testOp) Complete(s *Scheduler, err error, taskResult int) {
	if o.complete != nil {
		o.complete(o, s, err, taskResult)
	}
}

func (o *testOp) Destroy() {
	if o.destroy != nil {
		o.destroy(o)
	}
}

// countingOp records completions and destructions; used wherever only the
// exactly-once accounting matters.
func countingOp(completed, destroyed *atomic.Int64) *testOp {
	return &testOp{
		complete: func(*testOp, *Scheduler, error, int) { completed.Add(1) },
		destroy:  func(*testOp) { destroyed.Add(1) },
	}
}

// installReactor registers r as the context's reactor ahead of InitTask.
func installReactor(ctx *ExecutionContext, r interface {
	Reactor
	Service
}) {
	ctx.UseService(reactorServiceName, func() Service { return r })
}
