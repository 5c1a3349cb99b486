package socket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fast01/axon"
	"github.com/fast01/axon/coroutine"
)

// status is the ConsistentSocket status bitmask. Bits other than Down
// are not mutually exclusive.
type status uint32

const (
	StatusConnecting status = 1 << iota
	StatusReady
	StatusWriting
	StatusReading
	StatusDown
)

// Operation is one queued read or write request: a message and the
// callback that observes its eventual SocketResult.
type Operation struct {
	Msg *Message
	Cb  func(SocketResult)
}

// ConsistentSocket is a self-healing, order-preserving session over one
// Socket: bounded per-direction operation queues, a send-coalescing
// buffer, and three coroutine-driven loops (connect/read/write) that
// express retry and queueing as straight-line code instead of a chain
// of completion callbacks.
//
// All status-bit and queue mutation happens either inside a public
// method's own lock/unlock section, or inside a loop body while it is
// being driven forward by one of the resume helpers below — never both
// at once. The loop bodies themselves never lock mu directly: the
// resume helper that invoked them already holds it for the synchronous
// span from entry to the loop's next Yield, mirroring the single
// non-recursive mutex the original implementation funnels every
// coroutine entry point through.
type ConsistentSocket struct {
	ex      *axon.Executor
	reactor *axon.Reactor
	base    *Socket
	cfg     config

	addr          string
	port          uint32
	shouldConnect bool

	mu             sync.Mutex
	st             status
	readQueue      []Operation
	writeQueue     []Operation
	sendBuf        *NonfreeSequenceBuffer
	backoffAttempt int

	waitTimer *axon.Timer

	connectCoro *coroutine.Coroutine
	readCoro    *coroutine.Coroutine
	writeCoro   *coroutine.Coroutine
}

// NewConsistentSocket creates a ConsistentSocket over a fresh, unassigned
// base Socket. Give it a transport either with AdoptAccepted (typically
// an fd from a listener's accept) or by dialing out with StartConnecting;
// a socket that dials needs an address, which NewConsistentSocketDial sets.
func NewConsistentSocket(ex *axon.Executor, reactor *axon.Reactor, opts ...Option) *ConsistentSocket {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	c := &ConsistentSocket{
		ex:        ex,
		reactor:   reactor,
		base:      NewSocket(reactor, ex),
		cfg:       cfg,
		sendBuf:   NewNonfreeSequenceBuffer(4096),
		waitTimer: axon.NewTimer(ex),
	}
	c.connectCoro = coroutine.New()
	c.readCoro = coroutine.New()
	c.writeCoro = coroutine.New()
	c.connectCoro.SetFunc(c.connectLoop)
	c.readCoro.SetFunc(c.readLoop)
	c.writeCoro.SetFunc(c.writeLoop)
	return c
}

// NewConsistentSocketDial creates a ConsistentSocket that dials addr:port
// once StartConnecting is called.
func NewConsistentSocketDial(ex *axon.Executor, reactor *axon.Reactor, addr string, port uint32, opts ...Option) *ConsistentSocket {
	c := NewConsistentSocket(ex, reactor, opts...)
	c.addr = addr
	c.port = port
	return c
}

// BaseSocket exposes the underlying Socket, for callers that need Fd()
// or other low-level access (e.g. a listener handing off an accepted
// connection before calling AdoptAccepted).
func (c *ConsistentSocket) BaseSocket() *Socket { return c.base }

// AdoptAccepted registers an already-connected fd (e.g. from accept(2))
// as this ConsistentSocket's transport and marks it ready immediately,
// skipping the connect loop — the Go equivalent of the original's
// base_socket()+set_ready() pair for server-accepted connections.
func (c *ConsistentSocket) AdoptAccepted(fd int) error {
	if err := c.base.Assign(fd); err != nil {
		return err
	}
	c.SetReady()
	return nil
}

// SetReady marks the transport usable without going through the connect
// loop, and wakes the read/write loops in case work is already queued.
func (c *ConsistentSocket) SetReady() {
	c.mu.Lock()
	c.st |= StatusReady
	c.mu.Unlock()
	c.nudge(c.readCoro, StatusReading)
	c.nudge(c.writeCoro, StatusWriting)
}

// StartConnecting enables the connect loop and kicks it off.
func (c *ConsistentSocket) StartConnecting() {
	c.mu.Lock()
	c.shouldConnect = true
	c.mu.Unlock()
	c.nudge(c.connectCoro, StatusConnecting)
}

// AsyncRecv enqueues {msg, cb} on the read queue. cb observes Down
// immediately if the socket is already torn down, or BufferFull if the
// queue is saturated; otherwise it observes the eventual read outcome.
func (c *ConsistentSocket) AsyncRecv(msg *Message, cb func(SocketResult)) {
	c.mu.Lock()
	if c.st&StatusDown != 0 {
		c.mu.Unlock()
		cb(Down)
		return
	}
	if len(c.readQueue) >= c.cfg.queueCap {
		c.mu.Unlock()
		cb(BufferFull)
		return
	}
	c.readQueue = append(c.readQueue, Operation{Msg: msg, Cb: cb})
	c.mu.Unlock()
	c.nudge(c.readCoro, StatusReading)
}

// AsyncSend enqueues {msg, cb} on the write queue; semantics mirror
// AsyncRecv.
func (c *ConsistentSocket) AsyncSend(msg *Message, cb func(SocketResult)) {
	c.mu.Lock()
	if c.st&StatusDown != 0 {
		c.mu.Unlock()
		cb(Down)
		return
	}
	if len(c.writeQueue) >= c.cfg.queueCap {
		c.mu.Unlock()
		cb(BufferFull)
		return
	}
	c.writeQueue = append(c.writeQueue, Operation{Msg: msg, Cb: cb})
	c.mu.Unlock()
	c.nudge(c.writeCoro, StatusWriting)
}

// Shutdown tears the session down permanently: marks Down, closes the
// base socket, drains both queues completing each pending op with
// Canceled, and wakes any loop that's idle (not mid-operation) so it
// observes Down and its coroutine finishes. A loop currently mid-
// operation unwinds on its own: the closed fd makes its outstanding
// async call fail, and that failure path already checks Down.
func (c *ConsistentSocket) Shutdown() {
	c.mu.Lock()
	if c.st&StatusDown != 0 {
		c.mu.Unlock()
		return
	}
	c.st |= StatusDown
	readOps := c.readQueue
	writeOps := c.writeQueue
	c.readQueue = nil
	c.writeQueue = nil
	c.mu.Unlock()

	c.waitTimer.Cancel()
	c.base.Shutdown()

	for _, op := range readOps {
		op.Cb(Canceled)
	}
	for _, op := range writeOps {
		op.Cb(Canceled)
	}

	c.nudge(c.connectCoro, StatusConnecting)
	c.nudge(c.readCoro, StatusReading)
	c.nudge(c.writeCoro, StatusWriting)
}

// nudge resumes co unless the given status bit is already set, mirroring
// the original header's wrap(coro, flag) guard: a coroutine already mid
// its own operation must not be resumed a second time out from under
// itself.
func (c *ConsistentSocket) nudge(co *coroutine.Coroutine, busyFlag status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st&busyFlag != 0 {
		return
	}
	co.Resume()
}

// wake resumes co unconditionally, holding mu for the call's duration.
// Used by completion callbacks and timer firings, which run outside any
// loop body's turn and are always a legitimate resume (they correspond
// exactly to the operation the loop body is parked waiting on).
func (c *ConsistentSocket) wake(co *coroutine.Coroutine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	co.Resume()
}

func (c *ConsistentSocket) nextBackoff() time.Duration {
	d := float64(c.cfg.backoffBase)
	for i := 0; i < c.backoffAttempt; i++ {
		d *= c.cfg.backoffFactor
	}
	c.backoffAttempt++
	if capD := float64(c.cfg.backoffCap); d > capD {
		d = capD
	}
	return time.Duration(d)
}

// doReconnect clears Ready and, if a connect is warranted and not
// already in flight, resumes the connect coroutine directly. Called
// only from inside a read/write loop's own turn, so mu is already held
// by the ambient resume call — it must not re-lock.
func (c *ConsistentSocket) doReconnect() {
	c.st &^= StatusReady
	if c.shouldConnect && c.st&StatusConnecting == 0 {
		c.connectCoro.Resume()
	}
}

func (c *ConsistentSocket) connectLoop(co *coroutine.Coroutine) {
	for {
		if !c.shouldConnect || c.st&StatusDown != 0 {
			return
		}
		c.st &^= StatusReady
		c.st |= StatusConnecting
		// Close the fd of any earlier connection or attempt so AsyncConnect
		// can assign a fresh one.
		c.base.Shutdown()

		var connErr error
		var settled int32
		dialTimer := axon.NewTimer(c.ex)
		dialTimer.ExpiresFromNow(c.cfg.dialTimeout)
		dialTimer.AsyncWait(func(err error) {
			if err != nil {
				return // canceled by the connect completing first
			}
			if atomic.CompareAndSwapInt32(&settled, 0, 1) {
				c.base.Shutdown()
				connErr = errDialTimeout
				c.wake(co)
			}
		})
		c.base.AsyncConnect(c.addr, c.port, func(_ int, err error) {
			if atomic.CompareAndSwapInt32(&settled, 0, 1) {
				dialTimer.Cancel()
				connErr = err
				c.wake(co)
			}
		})
		co.Yield()

		c.st &^= StatusConnecting
		if connErr == nil {
			c.st |= StatusReady
			c.backoffAttempt = 0
			// mu is already held by the ambient resume call: resume the
			// loops directly, with the same busy-flag guard nudge applies.
			if c.st&StatusReading == 0 {
				c.readCoro.Resume()
			}
			if c.st&StatusWriting == 0 {
				c.writeCoro.Resume()
			}
			// Stay alive so doReconnect can resume this loop after a drop.
			co.Yield()
			continue
		}

		if c.cfg.logger != nil {
			c.cfg.logger.Warnf("axon/socket: connect to %s:%d failed: %v", c.addr, c.port, connErr)
		}
		delay := c.nextBackoff()
		c.waitTimer.ExpiresFromNow(delay)
		c.waitTimer.AsyncWait(func(error) { c.wake(co) })
		co.Yield()
		// loop back and retry, unless Shutdown ran meanwhile.
	}
}

func (c *ConsistentSocket) readLoop(co *coroutine.Coroutine) {
	for c.st&StatusDown == 0 {
		if len(c.readQueue) == 0 || c.st&StatusReady == 0 {
			co.Yield()
			continue
		}
		op := c.readQueue[0]
		c.readQueue = c.readQueue[1:]
		c.st |= StatusReading

		var err error
		c.base.AsyncRecv(op.Msg.Buf, func(_ int, rerr error) {
			err = rerr
			c.wake(co)
		})
		co.Yield()

		c.st &^= StatusReading
		if err == nil {
			op.Cb(Success)
			continue
		}

		op.Cb(Down)
		pending := c.readQueue
		c.readQueue = nil
		for _, p := range pending {
			p.Cb(Down)
		}
		c.doReconnect()
	}
}

func (c *ConsistentSocket) writeLoop(co *coroutine.Coroutine) {
	for c.st&StatusDown == 0 {
		if len(c.writeQueue) == 0 || c.st&StatusReady == 0 {
			co.Yield()
			continue
		}

		batch := c.writeQueue
		c.writeQueue = nil
		c.st |= StatusWriting

		for _, op := range batch {
			rh := op.Msg.Buf.ReadHead()
			_ = c.sendBuf.Prepare(len(rh))
			wh := c.sendBuf.WriteHead()
			n := copy(wh, rh)
			c.sendBuf.Accept(n)
			op.Msg.Buf.Consume(n)
		}

		var err error
		c.base.AsyncSend(c.sendBuf, func(_ int, serr error) {
			err = serr
			c.wake(co)
		})
		co.Yield()

		c.st &^= StatusWriting
		if err == nil {
			for _, op := range batch {
				op.Cb(Success)
			}
			continue
		}

		for _, op := range batch {
			op.Cb(Down)
		}
		pending := c.writeQueue
		c.writeQueue = nil
		for _, p := range pending {
			p.Cb(Down)
		}
		c.doReconnect()
	}
}
