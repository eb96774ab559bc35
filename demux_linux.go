//go:build linux

package iosched

import (
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Standard errors.
var (
	// ErrDemuxClosed is returned when registering with a demux that has
	// been shut down.
	ErrDemuxClosed = errors.New("iosched: demux closed")

	// ErrOpAlreadyPending is returned when a descriptor already has a
	// pending operation for the requested direction.
	ErrOpAlreadyPending = errors.New("iosched: descriptor already has a pending operation")
)

// epollFD tracks the pending one-shot operations for a descriptor.
type epollFD struct {
	read       Operation
	write      Operation
	registered bool
}

// EpollDemux is the Linux reactor: epoll for readiness notification and an
// eventfd for interrupt delivery. Readiness operations are one-shot: each
// registered operation is delivered at most once, with the epoll event bits
// as its task result, and interest is dropped when no operation remains.
//
// The scheduler guarantees a single goroutine inside Run; registration and
// interrupts may come from any goroutine.
type EpollDemux struct {
	epfd   int
	wakeFd int

	mu     sync.Mutex
	fds    map[int]*epollFD
	closed bool

	eventBuf [128]unix.EpollEvent
	wakeBuf  [8]byte
}

// NewEpollDemux creates an epoll instance with its interrupt eventfd
// registered.
func NewEpollDemux() (*EpollDemux, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, err
	}
	return &EpollDemux{
		epfd:   epfd,
		wakeFd: wakeFd,
		fds:    make(map[int]*epollFD),
	}, nil
}

// newDefaultReactor builds the reactor installed by UseReactor on first use.
// Falls back to the null reactor if epoll cannot be set up.
func newDefaultReactor() Service {
	d, err := NewEpollDemux()
	if err != nil {
		return newNullReactor()
	}
	return d
}

// RegisterReadOp arranges for op to be delivered to s once fd is readable.
// The operation's work unit is accounted here and retired when it completes.
// On error the caller retains ownership of op.
func (d *EpollDemux) RegisterReadOp(s *Scheduler, fd int, op Operation) error {
	return d.registerOp(s, fd, op, false)
}

// RegisterWriteOp arranges for op to be delivered to s once fd is writable.
func (d *EpollDemux) RegisterWriteOp(s *Scheduler, fd int, op Operation) error {
	return d.registerOp(s, fd, op, true)
}

func (d *EpollDemux) registerOp(s *Scheduler, fd int, op Operation, write bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDemuxClosed
	}
	st := d.fds[fd]
	if st == nil {
		st = &epollFD{}
		d.fds[fd] = st
	}
	if write {
		if st.write != nil {
			return ErrOpAlreadyPending
		}
		st.write = op
	} else {
		if st.read != nil {
			return ErrOpAlreadyPending
		}
		st.read = op
	}
	if err := d.updateLocked(fd, st); err != nil {
		if write {
			st.write = nil
		} else {
			st.read = nil
		}
		return err
	}
	s.WorkStarted()
	return nil
}

// updateLocked reconciles epoll interest for fd with its pending operations.
func (d *EpollDemux) updateLocked(fd int, st *epollFD) error {
	var events uint32
	if st.read != nil {
		events |= unix.EPOLLIN
	}
	if st.write != nil {
		events |= unix.EPOLLOUT
	}

	if events == 0 {
		if st.registered {
			st.registered = false
			delete(d.fds, fd)
			return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		}
		delete(d.fds, fd)
		return nil
	}

	ev := &unix.EpollEvent{Events: events, Fd: int32(fd)}
	if st.registered {
		return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	st.registered = true
	return nil
}

// Run waits for readiness for up to blockUsec microseconds and appends the
// completed operations to ops, each carrying its epoll event bits as the
// task result.
func (d *EpollDemux) Run(blockUsec int64, ops *OpQueue) {
	timeout := -1
	switch {
	case blockUsec == 0:
		timeout = 0
	case blockUsec > 0:
		timeout = int((blockUsec + 999) / 1000)
	}

	var n int
	for {
		var err error
		n, err = unix.EpollWait(d.epfd, d.eventBuf[:], timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return
		}
		break
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		ev := &d.eventBuf[i]
		fd := int(ev.Fd)
		if fd == d.wakeFd {
			for {
				if _, err := unix.Read(d.wakeFd, d.wakeBuf[:]); err != nil {
					break
				}
			}
			continue
		}
		st := d.fds[fd]
		if st == nil {
			continue
		}
		if st.read != nil && ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			op := st.read
			st.read = nil
			op.base().SetTaskResult(int(ev.Events))
			ops.Push(op)
		}
		if st.write != nil && ev.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			op := st.write
			st.write = nil
			op.base().SetTaskResult(int(ev.Events))
			ops.Push(op)
		}
		_ = d.updateLocked(fd, st)
	}
}

// Interrupt forces an in-progress Run to return promptly by making the
// eventfd readable.
func (d *EpollDemux) Interrupt() {
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, _ = unix.Write(d.wakeFd, buf)
}

// Shutdown destroys all pending operations and closes the epoll and eventfd
// descriptors. Part of the Service contract.
func (d *EpollDemux) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for fd, st := range d.fds {
		if st.read != nil {
			st.read.Destroy()
		}
		if st.write != nil {
			st.write.Destroy()
		}
		delete(d.fds, fd)
	}
	_ = unix.Close(d.epfd)
	_ = unix.Close(d.wakeFd)
}
