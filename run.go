// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

import (
	"math"
	"time"
)

// Run drives the scheduler until it is stopped or runs out of work,
// returning the number of handlers completed by this call (saturating at the
// platform maximum). Returns 0 immediately, stopping the scheduler, if no
// work is outstanding.
func (s *Scheduler) Run() int {
	if s.outstandingWork.Load() == 0 {
		s.Stop()
		return 0
	}

	thisThread := new(threadInfo)
	frame := driverStack.push(s, thisThread)
	defer driverStack.pop(frame)

	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()

	n := 0
	for s.doRunOne(&lock, thisThread) != 0 {
		if n != math.MaxInt {
			n++
		}
		lock.lock()
	}
	return n
}

// RunOne drives the scheduler until a single handler has completed, the
// scheduler stops, or work runs out.
func (s *Scheduler) RunOne() int {
	if s.outstandingWork.Load() == 0 {
		s.Stop()
		return 0
	}

	thisThread := new(threadInfo)
	frame := driverStack.push(s, thisThread)
	defer driverStack.pop(frame)

	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()

	return s.doRunOne(&lock, thisThread)
}

// WaitOne is RunOne with a bounded wait: it blocks for at most usec
// microseconds for a handler to become runnable, retrying at most once after
// the wait, and returns 0 on timeout.
func (s *Scheduler) WaitOne(usec int64) int {
	if s.outstandingWork.Load() == 0 {
		s.Stop()
		return 0
	}

	thisThread := new(threadInfo)
	frame := driverStack.push(s, thisThread)
	defer driverStack.pop(frame)

	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()

	return s.doWaitOne(&lock, thisThread, usec)
}

// Poll completes as many handlers as are already runnable, without blocking,
// and returns the number completed.
func (s *Scheduler) Poll() int {
	if s.outstandingWork.Load() == 0 {
		s.Stop()
		return 0
	}

	thisThread := new(threadInfo)
	frame := driverStack.push(s, thisThread)
	defer driverStack.pop(frame)

	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()

	// A nested poll must see handlers already sitting on the enclosing
	// drive call's private queue, or it would drain around them.
	if s.oneThread {
		if outer := frame.nextByKey(); outer != nil {
			s.queue.PushQueue(&outer.privateOpQueue)
		}
	}

	n := 0
	for s.doPollOne(&lock, thisThread) != 0 {
		if n != math.MaxInt {
			n++
		}
		lock.lock()
	}
	return n
}

// PollOne completes at most one already-runnable handler without blocking.
func (s *Scheduler) PollOne() int {
	if s.outstandingWork.Load() == 0 {
		s.Stop()
		return 0
	}

	thisThread := new(threadInfo)
	frame := driverStack.push(s, thisThread)
	defer driverStack.pop(frame)

	lock := schedLock{mutex: &s.mutex}
	lock.lock()
	defer lock.unlock()

	if s.oneThread {
		if outer := frame.nextByKey(); outer != nil {
			s.queue.PushQueue(&outer.privateOpQueue)
		}
	}

	return s.doPollOne(&lock, thisThread)
}

// doRunOne completes one operation or drives the reactor task. Entered with
// the lock held. Returns 1 after completing an operation, with the lock in
// whatever state the work-cleanup guard left it; returns 0 once stopped,
// with the lock held.
func (s *Scheduler) doRunOne(lock *schedLock, thisThread *threadInfo) int {
	for !s.stopped {
		if !s.queue.Empty() {
			o := s.queue.Pop()
			more := !s.queue.Empty()

			if o == Operation(&s.taskOp) {
				s.taskInterrupted = more

				if more && !s.oneThread {
					// Real work is queued behind the sentinel; hand it to a
					// sleeping worker while this one drives the reactor.
					s.event.unlockAndSignalOne(lock)
				} else {
					lock.unlock()
				}

				blockUsec := int64(-1)
				if more {
					blockUsec = 0
				}
				s.runTask(lock, thisThread, blockUsec)
				continue
			}

			taskResult := o.base().taskResult

			if more && !s.oneThread {
				s.wakeOneThreadAndUnlock(lock)
			} else {
				lock.unlock()
			}

			s.completeOp(lock, thisThread, o, taskResult)
			return 1
		}

		s.event.clear(lock)
		s.event.wait(lock)
	}
	return 0
}

// doWaitOne is doRunOne with a bounded wait and at most one retry: if after
// waiting and driving the reactor with what is left of the caller's budget no
// handler is runnable, it gives up.
func (s *Scheduler) doWaitOne(lock *schedLock, thisThread *threadInfo, usec int64) int {
	if s.stopped {
		return 0
	}

	o := s.queue.Front()
	if o == nil {
		start := time.Now()
		s.event.clear(lock)
		s.event.waitForUsec(lock, usec)
		if usec > 0 {
			// Wait at most once: the reactor only gets what is left.
			usec -= time.Since(start).Microseconds()
			if usec < 0 {
				usec = 0
			}
		}
		o = s.queue.Front()
	}

	if o == Operation(&s.taskOp) {
		s.queue.Pop()
		more := !s.queue.Empty()
		s.taskInterrupted = more

		if more && !s.oneThread {
			s.event.unlockAndSignalOne(lock)
		} else {
			lock.unlock()
		}

		blockUsec := usec
		if more {
			blockUsec = 0
		}
		s.runTask(lock, thisThread, blockUsec)

		o = s.queue.Front()
		if o == Operation(&s.taskOp) {
			// The reactor produced nothing within the budget. Leave the
			// sentinel for the next driver and hint at any sleeping worker.
			s.event.maybeUnlockAndSignalOne(lock)
			return 0
		}
	}

	if o == nil {
		return 0
	}

	s.queue.Pop()
	more := !s.queue.Empty()
	taskResult := o.base().taskResult

	if more && !s.oneThread {
		s.wakeOneThreadAndUnlock(lock)
	} else {
		lock.unlock()
	}

	s.completeOp(lock, thisThread, o, taskResult)
	return 1
}

// doPollOne is the non-blocking variant: it completes one runnable handler,
// driving the reactor with a zero budget if the sentinel is at the head.
func (s *Scheduler) doPollOne(lock *schedLock, thisThread *threadInfo) int {
	if s.stopped {
		return 0
	}

	o := s.queue.Front()
	if o == Operation(&s.taskOp) {
		s.queue.Pop()
		lock.unlock()

		s.runTask(lock, thisThread, 0)

		o = s.queue.Front()
		if o == Operation(&s.taskOp) {
			s.event.maybeUnlockAndSignalOne(lock)
			return 0
		}
	}

	if o == nil {
		return 0
	}

	s.queue.Pop()
	more := !s.queue.Empty()
	taskResult := o.base().taskResult

	if more && !s.oneThread {
		s.wakeOneThreadAndUnlock(lock)
	} else {
		lock.unlock()
	}

	s.completeOp(lock, thisThread, o, taskResult)
	return 1
}

// runTask drives the reactor, with the task-cleanup guard restoring the
// scheduler's invariants on every exit path, panics included.
func (s *Scheduler) runTask(lock *schedLock, thisThread *threadInfo, blockUsec int64) {
	defer s.taskCleanup(lock, thisThread)
	s.task.Run(blockUsec, &thisThread.privateOpQueue)
}

// completeOp invokes one handler, with the work-cleanup guard restoring the
// scheduler's invariants on every exit path, panics included.
func (s *Scheduler) completeOp(lock *schedLock, thisThread *threadInfo, o Operation, taskResult int) {
	defer s.workCleanup(lock, thisThread)
	o.Complete(s, nil, taskResult)
}

// taskCleanup runs when a worker returns from driving the reactor: fold the
// private work count into the shared counter, then under the lock mark the
// task interrupted, splice harvested completions onto the main queue, and
// return the sentinel to the queue.
func (s *Scheduler) taskCleanup(lock *schedLock, thisThread *threadInfo) {
	if thisThread.privateOutstandingWork > 0 {
		s.outstandingWork.Add(int64(thisThread.privateOutstandingWork))
	}
	thisThread.privateOutstandingWork = 0

	lock.lock()
	s.taskInterrupted = true
	s.queue.PushQueue(&thisThread.privateOpQueue)
	s.queue.Push(&s.taskOp)
}

// workCleanup runs when a handler returns: fold the private work count into
// the shared counter, net of the one unit this operation itself consumed,
// and splice any continuation posts onto the main queue.
func (s *Scheduler) workCleanup(lock *schedLock, thisThread *threadInfo) {
	if thisThread.privateOutstandingWork > 1 {
		s.outstandingWork.Add(int64(thisThread.privateOutstandingWork - 1))
	} else if thisThread.privateOutstandingWork < 1 {
		s.WorkFinished()
	}
	thisThread.privateOutstandingWork = 0

	if !thisThread.privateOpQueue.Empty() {
		lock.lock()
		s.queue.PushQueue(&thisThread.privateOpQueue)
	}
}
