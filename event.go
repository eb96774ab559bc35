// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

import "time"

// wakeupEvent is the condition primitive workers sleep on while the main
// queue is empty. All fields are guarded by the paired scheduler mutex; every
// method must be entered with the lock held.
//
// The signalled flag is sticky: it is set by every signal variant and stays
// set until clear, so a signal delivered with no waiters is observed by the
// next wait. Each waiter registers a one-slot buffered channel, which lets
// the signal-one variants release the lock before sending without any risk
// of blocking or lost wakeups.
//
// When the paired mutex is disabled (single-threaded mode) there is nothing
// to coordinate with: waits degrade to sleeps and signals to no-ops.
type wakeupEvent struct {
	signalled bool
	waiters   []chan struct{}
}

// clear discards any pending signal; the next wait will block.
func (e *wakeupEvent) clear(l *schedLock) {
	e.signalled = false
}

// wait blocks until the event is signalled, releasing the lock while parked
// and reacquiring it before returning.
func (e *wakeupEvent) wait(l *schedLock) {
	if !l.mutex.enabled {
		// No second worker exists to deliver a signal. Mirrors the null
		// event of the threadless build: sleep, never wake.
		for {
			time.Sleep(time.Second)
		}
	}
	for !e.signalled {
		ch := make(chan struct{}, 1)
		e.waiters = append(e.waiters, ch)
		l.unlock()
		<-ch
		l.lock()
	}
}

// waitForUsec is a single-shot bounded wait: it parks for at most usec
// microseconds and reports whether the event was signalled. Unlike wait it
// does not loop; the run loop's retry policy is built on that.
func (e *wakeupEvent) waitForUsec(l *schedLock, usec int64) bool {
	if !l.mutex.enabled {
		if usec > 0 {
			time.Sleep(time.Duration(usec) * time.Microsecond)
		}
		return false
	}
	if !e.signalled {
		ch := make(chan struct{}, 1)
		e.waiters = append(e.waiters, ch)
		l.unlock()
		t := time.NewTimer(time.Duration(usec) * time.Microsecond)
		select {
		case <-ch:
		case <-t.C:
		}
		t.Stop()
		l.lock()
		e.removeWaiter(ch)
	}
	return e.signalled
}

// removeWaiter unregisters ch after a timed-out wait. A signaller may have
// concurrently claimed ch; in that case it is already gone from the slice
// and the buffered token is simply dropped with the channel.
func (e *wakeupEvent) removeWaiter(ch chan struct{}) {
	for i, w := range e.waiters {
		if w == ch {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// signalAll wakes every waiter. The lock remains held on return.
func (e *wakeupEvent) signalAll(l *schedLock) {
	e.signalled = true
	for _, ch := range e.waiters {
		ch <- struct{}{}
	}
	e.waiters = nil
}

// unlockAndSignalOne releases the lock and wakes one waiter if any is
// blocked. The signal is recorded regardless.
func (e *wakeupEvent) unlockAndSignalOne(l *schedLock) {
	e.signalled = true
	var ch chan struct{}
	if len(e.waiters) > 0 {
		ch = e.waiters[0]
		e.waiters = e.waiters[1:]
	}
	l.unlock()
	if ch != nil {
		ch <- struct{}{}
	}
}

// maybeUnlockAndSignalOne wakes one waiter and releases the lock only if a
// waiter is blocked, reporting whether one was woken. When it returns false
// the lock is still held: the caller decides what to do about the missed
// wake (typically interrupt the reactor).
func (e *wakeupEvent) maybeUnlockAndSignalOne(l *schedLock) bool {
	e.signalled = true
	if len(e.waiters) > 0 {
		ch := e.waiters[0]
		e.waiters = e.waiters[1:]
		l.unlock()
		ch <- struct{}{}
		return true
	}
	return false
}
