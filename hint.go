package iosched

// Concurrency hints communicate, at construction time, how many goroutines
// will touch a scheduler. A hint of 1 selects single-threaded mode; so does
// any "unsafe" (negative) hint, which additionally promises the scheduler
// may elide internal locking entirely. Any other value selects the fully
// locked multi-threaded mode.
const (
	// ConcurrencyHintDefault requests full internal locking.
	ConcurrencyHintDefault = 0

	// ConcurrencyHintUnsafe declares that at most one goroutine at a time
	// will use the scheduler, so internal locking may be elided. Violating
	// the promise is undefined behaviour.
	ConcurrencyHintUnsafe = -1

	// ConcurrencyHintUnsafeIO extends ConcurrencyHintUnsafe to cover the
	// reactor as well.
	ConcurrencyHintUnsafeIO = -2
)

// HintIsLocking reports whether the hint permits internal locking.
func HintIsLocking(hint int) bool { return hint >= 0 }
