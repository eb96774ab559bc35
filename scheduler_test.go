// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

import (
	"sync/atomic"
	"testing"
)

// Single handler, single worker: post, run, observe the completion, and a
// second run returns 0 because the work ran out.
func TestRunCompletesSinglePostedOperation(t *testing.T) {
	ctx := NewExecutionContext()
	mock := newMockReactor()
	installReactor(ctx, mock)

	s := New(ctx, 1)
	s.InitTask()

	var completed, destroyed atomic.Int64
	s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)

	if n := s.Run(); n != 1 {
		t.Fatalf("Run should complete 1 handler, got %d", n)
	}
	if completed.Load() != 1 || destroyed.Load() != 0 {
		t.Fatalf("expected exactly one completion, got complete=%d destroy=%d",
			completed.Load(), destroyed.Load())
	}
	if n := s.Run(); n != 0 {
		t.Fatalf("second Run should return 0, got %d", n)
	}
}

func TestRunWithoutWorkStopsImmediately(t *testing.T) {
	s := New(NewExecutionContext(), 0)
	if n := s.Run(); n != 0 {
		t.Fatalf("Run with no outstanding work should return 0, got %d", n)
	}
	if !s.Stopped() {
		t.Fatal("Run with no outstanding work should stop the scheduler")
	}
}

func TestRunOneCompletesExactlyOne(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)
	s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)

	if n := s.RunOne(); n != 1 {
		t.Fatalf("RunOne should complete 1 handler, got %d", n)
	}
	if completed.Load() != 1 {
		t.Fatalf("expected 1 completion after RunOne, got %d", completed.Load())
	}
	if n := s.Run(); n != 1 {
		t.Fatalf("Run should drain the remaining handler, got %d", n)
	}
	if completed.Load() != 2 {
		t.Fatalf("expected 2 completions, got %d", completed.Load())
	}
}

// Operations posted through the shared queue complete in posting order.
func TestFIFOOrdering(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	const count = 50
	var order []int
	for i := 0; i < count; i++ {
		i := i
		s.PostImmediateCompletion(&testOp{
			complete: func(*testOp, *Scheduler, error, int) {
				order = append(order, i)
			},
		}, false)
	}

	if n := s.Run(); n != count {
		t.Fatalf("Run should complete %d handlers, got %d", count, n)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("completion order broken at %d: got %d", i, got)
		}
	}
}

// Continuation fast path: a post made from inside a handler stays on the
// same worker, runs immediately after, and never touches the mutex.
func TestContinuationFastPath(t *testing.T) {
	s := New(NewExecutionContext(), 2)

	var locks atomic.Int64
	s.mutex.onLock = func() { locks.Add(1) }

	var order []string
	var gidA, gidB uint64

	b := &testOp{complete: func(*testOp, *Scheduler, error, int) {
		gidB = goroutineID()
		order = append(order, "b")
	}}
	a := &testOp{complete: func(_ *testOp, sched *Scheduler, _ error, _ int) {
		gidA = goroutineID()
		order = append(order, "a")
		before := locks.Load()
		sched.PostImmediateCompletion(b, true)
		if after := locks.Load(); after != before {
			t.Errorf("continuation post crossed the mutex: %d locks", after-before)
		}
	}}

	s.PostImmediateCompletion(a, false)
	if n := s.Run(); n != 2 {
		t.Fatalf("Run should complete 2 handlers, got %d", n)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("wrong completion order: %v", order)
	}
	if gidA != gidB {
		t.Fatalf("continuation ran on a different goroutine: %d vs %d", gidA, gidB)
	}
}

func TestStopIsIdempotentAndRestartResumes(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)

	s.Stop()
	s.Stop()
	if !s.Stopped() {
		t.Fatal("scheduler should report stopped")
	}
	if n := s.Run(); n != 0 {
		t.Fatalf("Run after Stop should return 0, got %d", n)
	}
	if completed.Load() != 0 {
		t.Fatal("no handler should run while stopped")
	}

	s.Restart()
	s.Restart()
	if s.Stopped() {
		t.Fatal("scheduler should not report stopped after Restart")
	}
	if n := s.Run(); n != 1 {
		t.Fatalf("Run after Restart should complete the queued handler, got %d", n)
	}
	if completed.Load() != 1 {
		t.Fatalf("expected 1 completion after restart, got %d", completed.Load())
	}
}

// Shutdown with queued work destroys every handler exactly once and invokes
// none of them.
func TestShutdownDestroysQueuedOperations(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	for i := 0; i < 100; i++ {
		s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)
	}

	s.Shutdown()
	if destroyed.Load() != 100 {
		t.Fatalf("expected 100 destroys, got %d", destroyed.Load())
	}
	if completed.Load() != 0 {
		t.Fatalf("expected 0 completions, got %d", completed.Load())
	}

	// One-shot.
	s.Shutdown()
	if destroyed.Load() != 100 {
		t.Fatal("second Shutdown should not destroy anything further")
	}
}

func TestPostAfterShutdownDestroysOperation(t *testing.T) {
	s := New(NewExecutionContext(), 0)
	s.Shutdown()

	var completed, destroyed atomic.Int64
	s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)
	s.PostDeferredCompletion(countingOp(&completed, &destroyed))
	s.DoDispatch(countingOp(&completed, &destroyed))

	var batch OpQueue
	batch.Push(countingOp(&completed, &destroyed))
	s.PostDeferredCompletions(&batch)

	if destroyed.Load() != 4 {
		t.Fatalf("posts after shutdown should destroy, got %d destroys", destroyed.Load())
	}
	if completed.Load() != 0 {
		t.Fatalf("posts after shutdown must not complete, got %d", completed.Load())
	}
}

// A handler that takes over an outstanding obligation offsets the decrement
// its own completion would otherwise apply.
func TestCompensatingWorkStarted(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	b := countingOp(&completed, &destroyed)
	a := &testOp{complete: func(_ *testOp, sched *Scheduler, _ error, _ int) {
		completed.Add(1)
		sched.CompensatingWorkStarted()
		// Deferred: the work unit was accounted by the compensation.
		sched.PostDeferredCompletion(b)
	}}

	s.PostImmediateCompletion(a, false)
	if n := s.Run(); n != 2 {
		t.Fatalf("Run should complete both handlers, got %d", n)
	}
	if completed.Load() != 2 {
		t.Fatalf("expected 2 completions, got %d", completed.Load())
	}
}

func TestPostDeferredCompletionsBatch(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	var batch OpQueue
	const count = 10
	for i := 0; i < count; i++ {
		batch.Push(countingOp(&completed, &destroyed))
	}
	// Deferred posts assume the work was accounted when first scheduled.
	s.outstandingWork.Add(count)
	s.PostDeferredCompletions(&batch)
	if !batch.Empty() {
		t.Fatal("batch should be left empty")
	}

	// Empty batch is a no-op.
	var empty OpQueue
	s.PostDeferredCompletions(&empty)

	if n := s.Run(); n != count {
		t.Fatalf("Run should complete %d handlers, got %d", count, n)
	}
	if completed.Load() != count {
		t.Fatalf("expected %d completions, got %d", count, completed.Load())
	}
}

func TestPostImmediateCompletionsBatch(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	var batch OpQueue
	const count = 7
	for i := 0; i < count; i++ {
		batch.Push(countingOp(&completed, &destroyed))
	}
	s.PostImmediateCompletions(count, &batch, false)

	if n := s.Run(); n != count {
		t.Fatalf("Run should complete %d handlers, got %d", count, n)
	}
	if completed.Load() != count || destroyed.Load() != 0 {
		t.Fatalf("unexpected accounting: complete=%d destroy=%d",
			completed.Load(), destroyed.Load())
	}
}

func TestAbandonOperationsTransfersOwnership(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	var q OpQueue
	for i := 0; i < 3; i++ {
		q.Push(countingOp(&completed, &destroyed))
	}

	s.AbandonOperations(&q)
	if !q.Empty() {
		t.Fatal("abandoned queue should be left empty")
	}
	if completed.Load() != 0 || destroyed.Load() != 0 {
		t.Fatal("abandon must neither invoke nor destroy handlers")
	}
}

// A panicking handler escapes through the drive call with the scheduler's
// invariants intact.
func TestHandlerPanicPropagates(t *testing.T) {
	s := New(NewExecutionContext(), 0)

	var completed, destroyed atomic.Int64
	s.PostImmediateCompletion(&testOp{
		complete: func(*testOp, *Scheduler, error, int) { panic("boom") },
	}, false)
	s.PostImmediateCompletion(countingOp(&completed, &destroyed), false)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("handler panic should escape Run")
			}
		}()
		s.Run()
	}()

	// The second handler survives and can still be driven.
	if n := s.Run(); n != 1 {
		t.Fatalf("Run after panic should complete the surviving handler, got %d", n)
	}
	if completed.Load() != 1 {
		t.Fatalf("expected the surviving handler to complete, got %d", completed.Load())
	}
}

func TestConcurrencyHint(t *testing.T) {
	ctx := NewExecutionContext()
	if got := New(ctx, 1).ConcurrencyHint(); got != 1 {
		t.Fatalf("ConcurrencyHint: got %d, want 1", got)
	}
	if got := New(ctx, 4).ConcurrencyHint(); got != 4 {
		t.Fatalf("ConcurrencyHint: got %d, want 4", got)
	}

	if !HintIsLocking(0) || !HintIsLocking(4) {
		t.Fatal("non-negative hints should permit locking")
	}
	if HintIsLocking(ConcurrencyHintUnsafe) || HintIsLocking(ConcurrencyHintUnsafeIO) {
		t.Fatal("unsafe hints must not permit locking")
	}

	if New(ctx, 1).mutex.enabled {
		t.Fatal("hint 1 should disable the mutex")
	}
	if New(ctx, ConcurrencyHintUnsafe).mutex.enabled {
		t.Fatal("unsafe hint should disable the mutex")
	}
	if !New(ctx, 2).mutex.enabled {
		t.Fatal("hint 2 should enable the mutex")
	}
}
