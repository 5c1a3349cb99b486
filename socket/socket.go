package socket

import (
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/fast01/axon"
)

// CompletionFunc is the completion callback for a raw Socket operation:
// n is the number of bytes transferred (for recv/send) and err is nil on
// success.
type CompletionFunc func(n int, err error)

// CompletionCondition inspects the bytes accumulated so far in buf and
// reports 0 if no boundary has been found yet, or the number of bytes
// that complete the boundary.
type CompletionCondition func(buf Buffer) int

// Socket wraps one non-blocking stream fd and issues async read-until,
// read, write, and connect operations through a Reactor/Executor pair,
// the same division of labor gaio's Watcher uses (raw non-blocking
// syscalls driven off readiness, never blocking the caller's goroutine).
type Socket struct {
	reactor *axon.Reactor
	ex      *axon.Executor

	mu sync.Mutex
	fd int
	fe *axon.FDEvent
}

// NewSocket creates an unassigned Socket bound to reactor and ex.
func NewSocket(reactor *axon.Reactor, ex *axon.Executor) *Socket {
	return &Socket{reactor: reactor, ex: ex, fd: -1}
}

// Fd returns the currently assigned file descriptor, or -1 if none.
func (s *Socket) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// Assign adopts an already-connected, non-blocking-capable fd (e.g. one
// accepted by a listener) and registers it with the Reactor.
func (s *Socket) Assign(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd >= 0 {
		return ErrAlreadyAssigned
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	fe, err := s.reactor.RegisterFD(fd, s.ex)
	if err != nil {
		return err
	}
	s.fd = fd
	s.fe = fe
	return nil
}

// Shutdown closes the underlying fd and unregisters it from the Reactor.
// In-flight events observe the closed fd as a read/write error on their
// next syscall attempt.
func (s *Socket) Shutdown() {
	s.mu.Lock()
	fd := s.fd
	s.fd = -1
	s.mu.Unlock()
	if fd < 0 {
		return
	}
	s.reactor.Unregister(fd)
	_ = unix.Close(fd)
}

func (s *Socket) snapshot() (fd int, fe *axon.FDEvent, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd, s.fe, s.fd >= 0
}

// AsyncRecv submits a single read attempt: on readiness it reads once
// into buf and completes with the byte count or an error.
func (s *Socket) AsyncRecv(buf Buffer, cb CompletionFunc) {
	fd, fe, ok := s.snapshot()
	if !ok {
		cb(0, ErrNotAssigned)
		return
	}
	ev := &recvEvent{s: s, fd: fd, buf: buf, cb: cb}
	_ = s.reactor.StartEvent(ev, fe)
}

// AsyncRecvUntil reads repeatedly as the fd stays readable, invoking
// pred after each successful read, until pred reports a boundary or an
// error occurs.
func (s *Socket) AsyncRecvUntil(buf Buffer, cb CompletionFunc, pred CompletionCondition) {
	fd, fe, ok := s.snapshot()
	if !ok {
		cb(0, ErrNotAssigned)
		return
	}
	ev := &recvEvent{s: s, fd: fd, buf: buf, cb: cb, pred: pred}
	_ = s.reactor.StartEvent(ev, fe)
}

// AsyncSend submits a write of buf's entire readable region, looping
// over partial writes within one readiness dispatch where possible.
func (s *Socket) AsyncSend(buf Buffer, cb CompletionFunc) {
	fd, fe, ok := s.snapshot()
	if !ok {
		cb(0, ErrNotAssigned)
		return
	}
	ev := &sendEvent{s: s, fd: fd, buf: buf, cb: cb}
	_ = s.reactor.StartEvent(ev, fe)
}

// AsyncConnect creates a non-blocking socket, issues connect(2), and
// completes cb once the connection succeeds or fails. addr may be a
// literal IP or a hostname (resolved via a single blocking lookup,
// acceptable since it happens once per connect attempt, not per byte).
func (s *Socket) AsyncConnect(addr string, port uint32, cb CompletionFunc) {
	ip, err := resolveIPv4(addr)
	if err != nil {
		cb(0, err)
		return
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		cb(0, err)
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		cb(0, err)
		return
	}

	sa := &unix.SockaddrInet4{Port: int(port)}
	copy(sa.Addr[:], ip)

	connErr := unix.Connect(fd, sa)
	if connErr != nil && connErr != unix.EINPROGRESS {
		unix.Close(fd)
		cb(0, connErr)
		return
	}

	if err := s.Assign(fd); err != nil {
		unix.Close(fd)
		cb(0, err)
		return
	}

	if connErr == nil {
		// connected synchronously (loopback, already-cached route)
		cb(0, nil)
		return
	}

	_, fe, _ := s.snapshot()
	ev := &connectEvent{s: s, fd: fd, cb: cb}
	_ = s.reactor.StartEvent(ev, fe)
}

func resolveIPv4(addr string) (net.IP, error) {
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	ips, err := net.LookupIP(addr)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, &net.AddrError{Err: "no A record", Addr: addr}
}

const recvChunk = 64 * 1024

// retryRead and retryWrite absorb EINTR the way gaio's tryRead/tryWrite
// do, so only EAGAIN and real errors reach the event loop above.
func retryRead(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func retryWrite(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// recvEvent backs both AsyncRecv (pred == nil, single attempt) and
// AsyncRecvUntil (pred != nil, loop until boundary/EAGAIN/error).
type recvEvent struct {
	s    *Socket
	fd   int
	buf  Buffer
	cb   CompletionFunc
	pred CompletionCondition

	total int
}

func (e *recvEvent) FD() int             { return e.fd }
func (e *recvEvent) Kind() axon.EventKind { return axon.EventRead }

func (e *recvEvent) Perform(mask uint32) {
	for {
		if err := e.buf.Prepare(recvChunk); err != nil {
			e.cb(e.total, err)
			return
		}
		n, err := retryRead(e.fd, e.buf.WriteHead())
		if err != nil {
			if err == unix.EAGAIN {
				_, fe, ok := e.s.snapshot()
				if !ok {
					e.cb(e.total, ErrClosed)
					return
				}
				_ = e.s.reactor.StartEvent(e, fe)
				return
			}
			e.cb(e.total, err)
			return
		}
		if n == 0 {
			e.cb(e.total, io.EOF)
			return
		}
		e.buf.Accept(n)
		e.total += n

		if e.pred == nil {
			e.cb(e.total, nil)
			return
		}
		if k := e.pred(e.buf); k > 0 {
			e.cb(e.total, nil)
			return
		}
		// no boundary yet: try another read immediately, the fd may
		// still have buffered data even though we're edge-triggered.
	}
}

// sendEvent writes buf's entire readable region, looping over partial
// writes within a single readiness dispatch.
type sendEvent struct {
	s   *Socket
	fd  int
	buf Buffer
	cb  CompletionFunc

	total int
}

func (e *sendEvent) FD() int             { return e.fd }
func (e *sendEvent) Kind() axon.EventKind { return axon.EventWrite }

func (e *sendEvent) Perform(mask uint32) {
	for e.buf.ReadSize() > 0 {
		n, err := retryWrite(e.fd, e.buf.ReadHead())
		if err != nil {
			if err == unix.EAGAIN {
				_, fe, ok := e.s.snapshot()
				if !ok {
					e.cb(e.total, ErrClosed)
					return
				}
				_ = e.s.reactor.StartEvent(e, fe)
				return
			}
			e.cb(e.total, err)
			return
		}
		e.buf.Consume(n)
		e.total += n
	}
	e.cb(e.total, nil)
}

// connectEvent observes write-readiness as non-blocking connect(2)
// completion, per the contract (connect is modeled as write-readiness).
type connectEvent struct {
	s  *Socket
	fd int
	cb CompletionFunc
}

func (e *connectEvent) FD() int             { return e.fd }
func (e *connectEvent) Kind() axon.EventKind { return axon.EventWrite }

func (e *connectEvent) Perform(mask uint32) {
	errno, err := unix.GetsockoptInt(e.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		e.cb(0, err)
		return
	}
	if errno != 0 {
		e.cb(0, syscall.Errno(errno))
		return
	}
	e.cb(0, nil)
}
