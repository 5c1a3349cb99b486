package rpc

import (
	"sync"

	"github.com/fast01/axon"
	"github.com/fast01/axon/coroutine"
	"github.com/fast01/axon/socket"
)

// Session is a per-connection object: one ConsistentSocket, one receive
// coroutine running event_loop (the original's name for this method),
// and a pluggable RPCService that each received Message is handed off
// to. It mirrors the original's rpc::Session, minus any wire framing.
type Session struct {
	ex  *axon.Executor
	cs  *socket.ConsistentSocket
	svc RPCService
	cfg config

	recvCoro *coroutine.Coroutine

	mu       sync.Mutex
	started  bool
	shutdown bool
}

// NewSession wraps an already-constructed ConsistentSocket (dialed, or
// adopted from a listener's accept) in a Session bound to svc. Callers
// ready the socket themselves (StartConnecting or AdoptAccepted) before
// or after calling StartEventLoop; the two are independent.
func NewSession(ex *axon.Executor, cs *socket.ConsistentSocket, svc RPCService, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	s := &Session{ex: ex, cs: cs, svc: svc, cfg: cfg}
	s.recvCoro = coroutine.New()
	s.recvCoro.SetFunc(s.eventLoop)
	return s
}

// Socket returns the Session's underlying ConsistentSocket.
func (s *Session) Socket() *socket.ConsistentSocket { return s.cs }

// StartEventLoop kicks off the receive loop. Calls after the first are
// no-ops.
func (s *Session) StartEventLoop() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.recvCoro.Resume()
}

// eventLoop receives one Message at a time, forever, posting each
// successfully received one to dispatchRequest through the Executor so
// RPCService.DispatchRequest never runs on the Reactor's goroutine. A
// non-Success recv result ends the loop: it removes itself from svc and
// returns, unless Shutdown ran, in which case it returns without calling
// RemoveSession.
func (s *Session) eventLoop(co *coroutine.Coroutine) {
	for {
		s.mu.Lock()
		down := s.shutdown
		s.mu.Unlock()
		if down {
			return
		}

		msg := socket.NewMessage(socket.NewNonfreeSequenceBuffer(s.cfg.recvBufferHint))
		var recvResult socket.SocketResult
		s.cs.AsyncRecv(msg, func(r socket.SocketResult) {
			recvResult = r
			// Resume through the Executor: this callback runs inside the
			// socket's read-loop turn (or inline, before Yield below), where
			// a direct Resume would deadlock.
			s.ex.Post(co.Resume)
		})
		co.Yield()

		s.mu.Lock()
		down = s.shutdown
		s.mu.Unlock()
		if down {
			return
		}

		if recvResult == socket.Success {
			s.ex.Post(func() { s.svc.DispatchRequest(msg, s) })
			continue
		}

		s.svc.RemoveSession(s)
		return
	}
}

// SendResponse submits msg on the underlying socket. A non-Success
// result is passed to onFailure when it is non-nil and dropped
// otherwise; a broken transport is also surfaced through the next recv
// on this same session.
func (s *Session) SendResponse(msg *socket.Message, onFailure func(socket.SocketResult)) {
	s.cs.AsyncSend(msg, func(r socket.SocketResult) {
		if r != socket.Success && onFailure != nil {
			onFailure(r)
		}
	})
}

// Shutdown stops the receive loop and tears down the socket. Safe to
// call more than once.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()
	s.cs.Shutdown()
}
