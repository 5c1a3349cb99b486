package axon

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fnEvent is a minimal Event adapter for exercising the Reactor with a
// plain callback, independent of the socket package.
type fnEvent struct {
	fd   int
	kind EventKind
	do   func(mask uint32)
}

func (e *fnEvent) FD() int             { return e.fd }
func (e *fnEvent) Kind() EventKind     { return e.kind }
func (e *fnEvent) Perform(mask uint32) { e.do(mask) }

func TestReactorDispatchesReadReadiness(t *testing.T) {
	r, err := NewReactor(nil)
	require.NoError(t, err)
	defer r.Shutdown()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	require.NoError(t, unix.SetNonblock(int(rf.Fd()), true))

	ex := NewExecutor()
	fe, err := r.RegisterFD(int(rf.Fd()), ex)
	require.NoError(t, err)

	fired := make(chan struct{})
	ev := &fnEvent{
		fd:   int(rf.Fd()),
		kind: EventRead,
		do:   func(mask uint32) { close(fired) },
	}
	require.NoError(t, r.StartEvent(ev, fe))

	go ex.Run()

	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("read event never dispatched")
	}
}

func TestReactorRejectsDuplicateRegistration(t *testing.T) {
	r, err := NewReactor(nil)
	require.NoError(t, err)
	defer r.Shutdown()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	ex := NewExecutor()
	_, err = r.RegisterFD(int(rf.Fd()), ex)
	require.NoError(t, err)

	_, err = r.RegisterFD(int(rf.Fd()), ex)
	require.ErrorIs(t, err, ErrFDAlreadyRegistered)
}

func TestReactorShutdownIsIdempotentAndRejectsNewWork(t *testing.T) {
	r, err := NewReactor(nil)
	require.NoError(t, err)

	r.Shutdown()
	r.Shutdown() // must not block or panic

	ex := NewExecutor()
	_, err = r.RegisterFD(0, ex)
	require.ErrorIs(t, err, ErrReactorClosed)
}
