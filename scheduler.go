// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Scheduler multiplexes completion handlers across any number of driver
// goroutines, cooperating with a single blocking reactor task. It never
// creates goroutines itself: workers are whichever goroutines call the drive
// methods ([Scheduler.Run], [Scheduler.RunOne], [Scheduler.WaitOne],
// [Scheduler.Poll], [Scheduler.PollOne]).
//
// The main operation queue, the stop flag, the task handle and the task
// interrupt flag are guarded by the scheduler mutex; the outstanding-work
// counter is atomic. Per-driver state lives on the drive call's stack frame
// and is only ever touched by its owning goroutine, except for splicing at
// handoff points under the mutex.
type Scheduler struct {
	// Prevent copying
	_ [0]func()

	ctx    *ExecutionContext
	logger *logiface.Logger[logiface.Event]

	mutex schedMutex
	event wakeupEvent

	// Main operation queue. May contain real operations and the task
	// sentinel in any order; guarded by mutex.
	queue OpQueue

	// stopped makes every drive method return 0 until Restart. Guarded by
	// mutex.
	stopped bool

	// shutdownFlag is terminal: once set, posted operations are destroyed
	// instead of queued.
	shutdownFlag atomic.Bool

	// task is the reactor, installed lazily by InitTask. The taskOp
	// sentinel is in the main queue exactly when the reactor is installed
	// and no worker is currently driving it.
	task            Reactor
	taskOp          taskOperation
	taskInterrupted bool

	outstandingWork atomic.Int64

	oneThread bool
	hint      int
}

// New creates a scheduler bound to ctx. The concurrency hint selects
// single-threaded mode when it is 1 or names one of the unsafe hints; see
// the ConcurrencyHint constants.
func New(ctx *ExecutionContext, concurrencyHint int, opts ...Option) *Scheduler {
	cfg := resolveOptions(opts)
	s := &Scheduler{
		ctx:       ctx,
		logger:    cfg.logger,
		oneThread: concurrencyHint == 1 || !HintIsLocking(concurrencyHint),
		hint:      concurrencyHint,
		// The reactor is "interrupted" while it isn't running.
		taskInterrupted: true,
	}
	s.mutex.enabled = !s.oneThread
	return s
}

// ConcurrencyHint returns the hint the scheduler was constructed with.
func (s *Scheduler) ConcurrencyHint() int { return s.hint }

// InitTask installs the context's reactor on first use and enqueues the task
// sentinel so that some worker will drive it. Idempotent; a no-op after
// Shutdown.
func (s *Scheduler) InitTask() {
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()
	if !s.shutdownFlag.Load() && s.task == nil {
		s.task = UseReactor(s.ctx)
		s.queue.Push(&s.taskOp)
		s.event.signalAll(&lock)
		s.logger.Debug().Log("iosched: reactor task installed")
	}
}

// Shutdown is terminal and one-shot. Every operation still queued is
// destroyed without being invoked, and the task handle is cleared. The
// scheduler must not be used afterwards.
func (s *Scheduler) Shutdown() {
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	if !s.shutdownFlag.CompareAndSwap(false, true) {
		lock.unlock()
		return
	}
	lock.unlock()

	// Nothing dispatches once shutdownFlag is set; the queue is drained
	// outside the lock.
	destroyed := 0
	for {
		o := s.queue.Pop()
		if o == nil {
			break
		}
		if o != Operation(&s.taskOp) {
			destroyed++
			o.Destroy()
		}
	}

	lock.lock()
	s.task = nil
	lock.unlock()

	s.logger.Debug().Int("destroyed", destroyed).Log("iosched: scheduler shut down")
}

// Stop makes every drive method return 0 on its next loop entry, wakes all
// sleeping workers, and interrupts the reactor if it is being driven.
// Idempotent.
func (s *Scheduler) Stop() {
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()
	s.stopAllThreads(&lock)
}

func (s *Scheduler) stopAllThreads(lock *schedLock) {
	s.stopped = true
	s.event.signalAll(lock)
	if !s.taskInterrupted && s.task != nil {
		s.taskInterrupted = true
		s.task.Interrupt()
	}
}

// Restart clears the stopped state so drive methods may be called again. It
// does not touch the outstanding-work counter. Idempotent.
func (s *Scheduler) Restart() {
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()
	s.stopped = false
}

// Stopped reports whether the scheduler is stopped.
func (s *Scheduler) Stopped() bool {
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()
	return s.stopped
}

// WorkStarted notifies the scheduler that a work unit is outstanding.
func (s *Scheduler) WorkStarted() {
	s.outstandingWork.Add(1)
}

// WorkFinished retires a work unit; when the count reaches zero the
// scheduler stops.
func (s *Scheduler) WorkFinished() {
	if s.outstandingWork.Add(-1) == 0 {
		s.Stop()
	}
}

// CompensatingWorkStarted offsets a work unit that an imminent cleanup guard
// will retire, used when a handler takes over an outstanding obligation.
// Must be called from a completion handler running on one of this
// scheduler's workers.
func (s *Scheduler) CompensatingWorkStarted() {
	info := driverStack.contains(s)
	info.privateOutstandingWork++
}

// PostImmediateCompletion requests invocation of op, accounting a new work
// unit. Continuation posts made from within one of this scheduler's handlers
// stay on the posting worker's private queue: no locks, no wakes.
func (s *Scheduler) PostImmediateCompletion(op Operation, isContinuation bool) {
	if s.shutdownFlag.Load() {
		op.Destroy()
		return
	}
	if s.oneThread || isContinuation {
		if info := driverStack.contains(s); info != nil {
			info.privateOutstandingWork++
			info.privateOpQueue.Push(op)
			return
		}
	}
	s.WorkStarted()
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	s.queue.Push(op)
	s.wakeOneThreadAndUnlock(&lock)
}

// PostImmediateCompletions is the bulk form of PostImmediateCompletion: it
// accounts n new work units and queues every operation in ops.
func (s *Scheduler) PostImmediateCompletions(n int, ops *OpQueue, isContinuation bool) {
	if s.shutdownFlag.Load() {
		for {
			o := ops.Pop()
			if o == nil {
				return
			}
			o.Destroy()
		}
	}
	if s.oneThread || isContinuation {
		if info := driverStack.contains(s); info != nil {
			info.privateOutstandingWork += n
			info.privateOpQueue.PushQueue(ops)
			return
		}
	}
	s.outstandingWork.Add(int64(n))
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	s.queue.PushQueue(ops)
	s.wakeOneThreadAndUnlock(&lock)
}

// PostDeferredCompletion queues an operation whose work unit was already
// accounted when it was first scheduled.
func (s *Scheduler) PostDeferredCompletion(op Operation) {
	if s.shutdownFlag.Load() {
		op.Destroy()
		return
	}
	if s.oneThread {
		if info := driverStack.contains(s); info != nil {
			info.privateOpQueue.Push(op)
			return
		}
	}
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	s.queue.Push(op)
	s.wakeOneThreadAndUnlock(&lock)
}

// PostDeferredCompletions queues a batch of already-accounted operations.
// No-op on an empty queue.
func (s *Scheduler) PostDeferredCompletions(ops *OpQueue) {
	if ops.Empty() {
		return
	}
	if s.shutdownFlag.Load() {
		for {
			o := ops.Pop()
			if o == nil {
				return
			}
			o.Destroy()
		}
	}
	if s.oneThread {
		if info := driverStack.contains(s); info != nil {
			info.privateOpQueue.PushQueue(ops)
			return
		}
	}
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	s.queue.PushQueue(ops)
	s.wakeOneThreadAndUnlock(&lock)
}

// DoDispatch queues op through the shared queue unconditionally, accounting
// a new work unit. Unlike the posting fast paths it never uses the calling
// worker's private queue.
func (s *Scheduler) DoDispatch(op Operation) {
	if s.shutdownFlag.Load() {
		op.Destroy()
		return
	}
	s.WorkStarted()
	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	s.queue.Push(op)
	s.wakeOneThreadAndUnlock(&lock)
}

// AbandonOperations detaches the given operations from the scheduler without
// invoking or destroying them, leaving ops empty. Any work accounting is the
// caller's responsibility.
func (s *Scheduler) AbandonOperations(ops *OpQueue) {
	var abandoned OpQueue
	abandoned.PushQueue(ops)
	n := 0
	for abandoned.Pop() != nil {
		n++
	}
	if n > 0 {
		s.logger.Trace().Int("count", n).Log("iosched: operations abandoned")
	}
}

// wakeOneThreadAndUnlock is the single arbitration point for new work: wake
// a sleeping worker if there is one, otherwise interrupt the reactor so the
// worker driving it comes back for the queue. Entered with the lock held;
// the lock is released on return.
func (s *Scheduler) wakeOneThreadAndUnlock(lock *schedLock) {
	if !s.event.maybeUnlockAndSignalOne(lock) {
		if !s.taskInterrupted && s.task != nil {
			s.taskInterrupted = true
			s.task.Interrupt()
		}
		lock.unlock()
	}
}
