// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iosched

// Operation is an opaque completion record. The scheduler knows nothing about
// an operation beyond its queue link and the two ways it can be consumed:
// invoked ([Operation.Complete]) or discarded ([Operation.Destroy]). Exactly
// one of the two happens, exactly once, for every posted operation.
//
// Implementations embed [OpBase], which supplies the intrusive queue link and
// the task-result slot. An operation may be a member of at most one [OpQueue]
// at any instant.
type Operation interface {
	// base returns the embedded OpBase. Satisfied by embedding OpBase.
	base() *OpBase

	// Complete invokes the completion handler, consuming the operation.
	// Called with no scheduler lock held. taskResult carries whatever the
	// demultiplexer recorded before the operation was enqueued.
	Complete(s *Scheduler, err error, taskResult int)

	// Destroy consumes the operation without invoking it. Used during
	// shutdown to dispose of queued-but-never-run handlers.
	Destroy()
}

// OpBase is the embeddable base of every [Operation] implementation. It holds
// the intrusive next link used by [OpQueue] and the task-result slot written
// by the reactor.
type OpBase struct {
	next       Operation
	linked     bool
	taskResult int
}

func (b *OpBase) base() *OpBase { return b }

// SetTaskResult records the demultiplexer's result for this operation. The
// value is snapshotted by the scheduler immediately before dispatch and
// passed to [Operation.Complete].
func (b *OpBase) SetTaskResult(r int) { b.taskResult = r }

// OpQueue is an intrusive singly-linked FIFO of operations. Push, Pop and
// PushQueue are O(1) and allocation-free; membership is recorded on the
// operation itself.
//
// OpQueue is not safe for concurrent use; callers provide serialization.
type OpQueue struct {
	head Operation
	tail Operation
}

// Empty reports whether the queue holds no operations.
func (q *OpQueue) Empty() bool { return q.head == nil }

// Front returns the head of the queue without removing it, or nil.
func (q *OpQueue) Front() Operation { return q.head }

// Push appends op to the tail of the queue. Panics if op is already a member
// of any queue: an operation is owned by exactly one queue at a time.
func (q *OpQueue) Push(op Operation) {
	b := op.base()
	if b.linked {
		panic("iosched: operation pushed while already queued")
	}
	b.next = nil
	b.linked = true
	if q.tail == nil {
		q.head = op
	} else {
		q.tail.base().next = op
	}
	q.tail = op
}

// PushQueue splices the entire contents of other onto the tail of q, leaving
// other empty.
func (q *OpQueue) PushQueue(other *OpQueue) {
	if other.head == nil {
		return
	}
	if q.tail == nil {
		q.head = other.head
	} else {
		q.tail.base().next = other.head
	}
	q.tail = other.tail
	other.head = nil
	other.tail = nil
}

// Pop removes and returns the head of the queue, or nil if the queue is
// empty. The returned operation is unlinked and may be pushed elsewhere.
func (q *OpQueue) Pop() Operation {
	op := q.head
	if op == nil {
		return nil
	}
	b := op.base()
	q.head = b.next
	if q.head == nil {
		q.tail = nil
	}
	b.next = nil
	b.linked = false
	return op
}

// taskOperation is the sentinel marking the reactor task's place in the main
// operation queue. Its presence in the queue is the token granting the right
// to drive the reactor; it is never completed and never destroyed.
type taskOperation struct {
	OpBase
}

func (*taskOperation) Complete(*Scheduler, error, int) {}

func (*taskOperation) Destroy() {}
