package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/fast01/axon"
	"github.com/fast01/axon/socket"
)

func socketpairFDs(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

type recordingService struct {
	mu        sync.Mutex
	received  [][]byte
	removed   int
	dispatchC chan struct{}
}

func (r *recordingService) DispatchRequest(msg *socket.Message, sess *Session) {
	r.mu.Lock()
	buf := append([]byte(nil), msg.Buf.ReadHead()...)
	r.received = append(r.received, buf)
	r.mu.Unlock()
	if r.dispatchC != nil {
		r.dispatchC <- struct{}{}
	}
}

func (r *recordingService) RemoveSession(sess *Session) {
	r.mu.Lock()
	r.removed++
	r.mu.Unlock()
}

func runExecutorFor(t *testing.T, ex *axon.Executor) {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				ex.Run()
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func newLoopbackSession(t *testing.T) (client *socket.ConsistentSocket, server *Session, svc *recordingService) {
	t.Helper()
	ex := axon.NewExecutor()
	reactor, err := axon.NewReactor(nil)
	require.NoError(t, err)
	t.Cleanup(reactor.Shutdown)
	runExecutorFor(t, ex)

	clientSock := socket.NewConsistentSocket(ex, reactor)
	serverSock := socket.NewConsistentSocket(ex, reactor)

	a, b := socketpairFDs(t)
	require.NoError(t, clientSock.AdoptAccepted(a))
	require.NoError(t, serverSock.AdoptAccepted(b))

	svc = &recordingService{dispatchC: make(chan struct{}, 8)}
	sess := NewSession(ex, serverSock, svc)
	sess.StartEventLoop()

	return clientSock, sess, svc
}

func TestSessionDispatchesReceivedMessage(t *testing.T) {
	client, _, svc := newLoopbackSession(t)

	buf := socket.NewNonfreeSequenceBuffer(16)
	require.NoError(t, buf.Prepare(5))
	n := copy(buf.WriteHead(), []byte("hello"))
	buf.Accept(n)

	sendDone := make(chan socket.SocketResult, 1)
	client.AsyncSend(socket.NewMessage(buf), func(r socket.SocketResult) { sendDone <- r })

	select {
	case r := <-sendDone:
		assert.Equal(t, socket.Success, r)
	case <-time.After(2 * time.Second):
		t.Fatal("send never completed")
	}

	select {
	case <-svc.dispatchC:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never observed")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.received, 1)
	assert.Equal(t, "hello", string(svc.received[0]))
}

func TestSessionShutdownStopsEventLoopWithoutRemoveSession(t *testing.T) {
	_, sess, svc := newLoopbackSession(t)

	sess.Shutdown()
	sess.Shutdown() // idempotent

	time.Sleep(20 * time.Millisecond)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Zero(t, svc.removed, "a deliberate Shutdown should not trigger RemoveSession")
}

func TestSessionRemovesItselfOnTransportFailure(t *testing.T) {
	client, _, svc := newLoopbackSession(t)

	client.Shutdown() // close the client side; server's next recv fails

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.removed == 1
	}, 2*time.Second, 10*time.Millisecond)
}
