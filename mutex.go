package iosched

import "sync"

// schedMutex is the scheduler's conditionally enabled mutex. In
// single-threaded mode every method is a no-op: serialization is the
// caller's promise, and the mutex survives only as a sequence point so the
// run loop has a single code path for both modes.
type schedMutex struct {
	enabled bool
	mu      sync.Mutex

	// onLock, when non-nil, is invoked before each acquisition. Test hook;
	// must be set before the scheduler is shared between goroutines.
	onLock func()
}

func (m *schedMutex) lock() {
	if m.enabled {
		if m.onLock != nil {
			m.onLock()
		}
		m.mu.Lock()
	}
}

func (m *schedMutex) unlock() {
	if m.enabled {
		m.mu.Unlock()
	}
}

// schedLock pairs a schedMutex with a held flag. The cleanup guards in the
// run loop re-acquire the mutex on some exit paths and not others; the flag
// makes lock and unlock idempotent so callers need not track which.
type schedLock struct {
	mutex  *schedMutex
	locked bool
}

func (l *schedLock) lock() {
	if !l.locked {
		l.mutex.lock()
		l.locked = true
	}
}

func (l *schedLock) unlock() {
	if l.locked {
		l.locked = false
		l.mutex.unlock()
	}
}
