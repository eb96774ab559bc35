package iosched

import (
	"runtime"
	"sync"
)

// threadInfo is the scratch state of a single drive call: completions bound
// for the main queue and work units not yet folded into the shared counter.
// Continuation-path posts land here, which is what keeps handler chains on
// one worker without touching the mutex.
type threadInfo struct {
	privateOpQueue         OpQueue
	privateOutstandingWork int
}

// stackFrame records one active drive call on a goroutine. Frames link
// outward: next is the frame of the enclosing drive call, if any.
type stackFrame struct {
	sched *Scheduler
	info  *threadInfo
	next  *stackFrame
}

// nextByKey returns the thread info of the nearest enclosing drive call on
// the same scheduler, or nil. Nested polls use it to make an outer drive's
// private completions visible before draining.
func (f *stackFrame) nextByKey() *threadInfo {
	for n := f.next; n != nil; n = n.next {
		if n.sched == f.sched {
			return n.info
		}
	}
	return nil
}

// callStack is the process-wide registry of active drive calls, keyed by
// goroutine ID. Each goroutine only ever reads and writes its own entry, so
// a sync.Map gives lock-free lookups on the posting fast path.
type callStack struct {
	frames sync.Map // goroutine ID -> *stackFrame (innermost)
}

var driverStack callStack

func (c *callStack) push(s *Scheduler, info *threadInfo) *stackFrame {
	id := goroutineID()
	f := &stackFrame{sched: s, info: info}
	if head, ok := c.frames.Load(id); ok {
		f.next = head.(*stackFrame)
	}
	c.frames.Store(id, f)
	return f
}

func (c *callStack) pop(f *stackFrame) {
	id := goroutineID()
	if f.next != nil {
		c.frames.Store(id, f.next)
	} else {
		c.frames.Delete(id)
	}
}

// contains returns the innermost threadInfo registered for s on the calling
// goroutine, or nil if this goroutine is not inside one of s's drive calls.
func (c *callStack) contains(s *Scheduler) *threadInfo {
	head, ok := c.frames.Load(goroutineID())
	if !ok {
		return nil
	}
	for f := head.(*stackFrame); f != nil; f = f.next {
		if f.sched == s {
			return f.info
		}
	}
	return nil
}

// goroutineID returns the current goroutine's ID, parsed from the stack
// header ("goroutine N [...").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
