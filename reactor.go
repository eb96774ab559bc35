// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

import "time"

// reactorServiceName keys the reactor service within an ExecutionContext.
const reactorServiceName = "iosched.reactor"

// Reactor is the OS event demultiplexer driven by the scheduler's task. The
// scheduler guarantees at most one goroutine is inside Run at a time.
type Reactor interface {
	// Run blocks for up to blockUsec microseconds waiting for events,
	// appending any newly ready completions to ops. A blockUsec of zero is
	// a non-blocking poll; a negative value blocks without bound.
	Run(blockUsec int64, ops *OpQueue)

	// Interrupt forces an in-progress Run to return promptly. An interrupt
	// delivered while Run is not in progress may be latched and consumed by
	// the next Run.
	Interrupt()
}

// UseReactor returns the context's reactor, installing the platform default
// on first use. Tests and upper layers may register their own reactor under
// the same service name before the first drive call.
func UseReactor(ctx *ExecutionContext) Reactor {
	return ctx.UseService(reactorServiceName, newDefaultReactor).(Reactor)
}

// nullReactor satisfies the task contract without demultiplexing any I/O. It
// honours the blocking budget and the interrupt latch, and never produces
// completions. Used on platforms without a native demux implementation, and
// as the fallback when the native demux cannot be constructed.
type nullReactor struct {
	interrupt chan struct{}
}

func newNullReactor() *nullReactor {
	return &nullReactor{interrupt: make(chan struct{}, 1)}
}

func (r *nullReactor) Run(blockUsec int64, ops *OpQueue) {
	if blockUsec == 0 {
		select {
		case <-r.interrupt:
		default:
		}
		return
	}
	if blockUsec < 0 {
		<-r.interrupt
		return
	}
	t := time.NewTimer(time.Duration(blockUsec) * time.Microsecond)
	defer t.Stop()
	select {
	case <-r.interrupt:
	case <-t.C:
	}
}

func (r *nullReactor) Interrupt() {
	select {
	case r.interrupt <- struct{}{}:
	default:
	}
}

func (r *nullReactor) Shutdown() {}
