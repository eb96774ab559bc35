// Package iosched provides the completion scheduler at the heart of an
// asynchronous I/O runtime: it multiplexes an unbounded set of completion
// handlers across any number of driver goroutines, cooperating with a single
// blocking reactor task (the OS event demultiplexer).
//
// # Architecture
//
// The scheduler is built around one main operation queue under one mutex.
// External producers post operations onto the main queue; workers (any
// goroutines calling [Scheduler.Run], [Scheduler.RunOne], [Scheduler.WaitOne],
// [Scheduler.Poll], or [Scheduler.PollOne]) pop and complete them. The right
// to drive the reactor is represented by a sentinel operation in the queue:
// the worker that pops the sentinel runs the reactor, and returns the
// sentinel when it comes back, so at most one worker demultiplexes at a time.
//
// Completions harvested from the reactor, and continuation posts made by
// handlers running on a worker, accumulate on that worker's private queue
// and are spliced back onto the main queue at well-defined handoff points.
// This keeps handler chains on one worker without crossing the mutex or the
// wake-up event.
//
// # Work accounting
//
// Every posted operation accounts one unit of outstanding work; every
// completed operation retires one. Operations destroyed by
// [Scheduler.Shutdown] are not retired from the count. When the count
// reaches zero the scheduler stops and all drive methods return 0 until
// [Scheduler.Restart]. [Scheduler.WorkStarted] and [Scheduler.WorkFinished]
// extend the same accounting to work tracked outside the queue.
//
// # Thread safety
//
// All posting methods are safe to call from any goroutine, and any number of
// goroutines may drive the scheduler concurrently. The scheduler never
// creates goroutines. A concurrency hint of 1 (or an unsafe hint; see
// [ConcurrencyHintUnsafe]) selects single-threaded mode, which elides
// internal locking and enables the posting fast paths unconditionally.
//
// # Shutdown
//
// [Scheduler.Shutdown] is terminal: every queued operation is destroyed
// without being invoked, exactly once. For every posted operation, either
// Complete or Destroy is called exactly once, never both.
//
// # Platform support
//
// The default reactor demultiplexes with epoll on Linux (see [EpollDemux]);
// other platforms fall back to a timer-and-interrupt reactor that
// demultiplexes no I/O. Any [Reactor] implementation may be installed on the
// [ExecutionContext] instead.
package iosched
