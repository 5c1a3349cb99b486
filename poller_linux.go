//go:build linux

package axon

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Edge-triggered readiness bits, expressed in the caller's vocabulary;
// values happen to coincide with epoll's own bits so arm() can pass them
// straight through, but Reactor code never assumes that.
const (
	pollRead  uint32 = unix.EPOLLIN
	pollWrite uint32 = unix.EPOLLOUT
)

const maxPollerEvents = 256

// readyEvent is one (fd, readiness mask) pair surfaced by a single
// poller.wait() wakeup.
type readyEvent struct {
	fd   int
	mask uint32
}

// poller wraps a Linux epoll instance plus an eventfd self-pipe used
// purely to interrupt a blocked epoll_wait for shutdown.
type poller struct {
	epfd int

	mu      sync.Mutex
	armed   map[int]uint32
	wakeFd  int
	closeWg sync.Once
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("axon: epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("axon: eventfd: %w", err)
	}

	p := &poller{
		epfd:   epfd,
		armed:  make(map[int]uint32),
		wakeFd: wakeFd,
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFd)
		return nil, fmt.Errorf("axon: register interrupt fd: %w", err)
	}

	return p, nil
}

// arm (re)registers fd for exactly the readiness bits in mask. mask==0
// de-registers fd entirely, absorbing the "spurious wake" case described
// in the reactor's run-loop algorithm. fd is registered edge-triggered
// (EPOLLET), and every call with a non-zero mask re-issues the
// registration, which makes epoll report readiness that already holds:
// this is the re-arm after each dispatch.
func (p *poller) arm(fd int, mask uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, known := p.armed[fd]
	if mask == 0 {
		if !known {
			return nil
		}
		delete(p.armed, fd)
		err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if err != nil && err != unix.ENOENT {
			return err
		}
		return nil
	}

	op := unix.EPOLL_CTL_MOD
	if !known {
		op = unix.EPOLL_CTL_ADD
	}
	p.armed[fd] = mask

	return unix.EpollCtl(p.epfd, op, fd, &unix.EpollEvent{
		Events: mask | unix.EPOLLET,
		Fd:     int32(fd),
	})
}

func (p *poller) remove(fd int) error {
	return p.arm(fd, 0)
}

// wait blocks until at least one registered fd is ready or the poller is
// interrupted, and returns the batch of (fd, mask) pairs. EPOLLERR and
// EPOLLHUP are folded into both read and write bits so a pending
// operation in either direction observes the failure on its next
// syscall attempt, per the error-handling design (OS errors surface
// through the head event of the affected queue).
func (p *poller) wait() (events []readyEvent, interrupted bool, err error) {
	var raw [maxPollerEvents]unix.EpollEvent
	for {
		n, werr := unix.EpollWait(p.epfd, raw[:], -1)
		if werr == unix.EINTR {
			continue
		}
		if werr != nil {
			return nil, false, fmt.Errorf("axon: epoll_wait: %w", werr)
		}

		for i := 0; i < n; i++ {
			fd := int(raw[i].Fd)
			if fd == p.wakeFd {
				p.drainWake()
				interrupted = true
				continue
			}
			mask := raw[i].Events
			if mask&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				mask |= pollRead | pollWrite
			}
			events = append(events, readyEvent{fd: fd, mask: mask})
		}
		return events, interrupted, nil
	}
}

func (p *poller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// interrupt wakes a blocked wait() call for shutdown.
func (p *poller) interrupt() {
	one := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, _ = unix.Write(p.wakeFd, one[:])
}

func (p *poller) close() error {
	var err error
	p.closeWg.Do(func() {
		if e := unix.Close(p.epfd); e != nil {
			err = e
		}
		if e := unix.Close(p.wakeFd); e != nil && err == nil {
			err = e
		}
	})
	return err
}
