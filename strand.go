package axon

import "sync/atomic"

// strandNode is one cell of the Strand's lock-free (Treiber) stack.
type strandNode struct {
	next *strandNode
	cb   func()
}

// Strand is a serializing adapter over an Executor: callbacks submitted
// through the same Strand run one at a time, in submission order, each
// on some Executor worker goroutine. At most one perform "drain" task is
// ever in flight per Strand.
//
// The producer side is a lock-free stack (push = CAS-loop prepend); the
// consumer side drains it with one atomic swap, reverses the drained
// list to restore submission order, and runs callbacks in order. This
// mirrors the lock-free-stack-plus-scheduled-flag algorithm described in
// the design; a mutex-protected queue would satisfy the same contract
// just as well — the lock-free form is a performance choice, not a
// requirement.
type Strand struct {
	head      atomic.Pointer[strandNode]
	scheduled atomic.Bool
	ex        *Executor
}

// NewStrand creates a Strand whose perform tasks are posted to ex.
func NewStrand(ex *Executor) *Strand {
	return &Strand{ex: ex}
}

// push prepends cb onto the lock-free stack with a CAS loop.
func (s *Strand) push(cb func()) {
	n := &strandNode{cb: cb}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// take atomically detaches the entire stack and returns its head.
func (s *Strand) take() *strandNode {
	return s.head.Swap(nil)
}

func reverseStrandList(head *strandNode) *strandNode {
	var prev *strandNode
	for head != nil {
		next := head.next
		head.next = prev
		prev = head
		head = next
	}
	return prev
}

// Post submits cb for execution through this Strand. Callbacks posted
// through the same Strand — even from different producer goroutines —
// run in submission order and never concurrently with each other.
func (s *Strand) Post(cb func()) {
	s.push(cb)
	if s.scheduled.CompareAndSwap(false, true) {
		s.ex.Post(s.perform)
	}
}

// Dispatch submits cb for execution through this Strand. The contract
// allows an implementation to run cb inline when the calling goroutine
// is already inside this Strand's own perform (avoiding a round-trip
// through the Executor); Go has no public goroutine-local storage, and
// detecting that condition safely would require an unsafe goroutine-id
// lookup for a purely optional optimization, so Dispatch here always
// behaves like Post — correct per contract ("otherwise behave as post"),
// just never taking the inline fast path.
func (s *Strand) Dispatch(cb func()) {
	s.Post(cb)
}

// Wrap returns a nullary callable that, when invoked, posts cb through
// the Strand.
func (s *Strand) Wrap(cb func()) func() {
	return func() { s.Post(cb) }
}

// perform drains the stack, restores submission order, and runs each
// callback in turn, then tries to go idle. Clearing "scheduled" and
// re-checking for a concurrent push (re-claiming scheduling duty if one
// landed) is what keeps a producer racing the end of a drain from having
// its callback stranded unseen — the classic MPSC-dispatcher idle check.
func (s *Strand) perform() {
	for {
		list := reverseStrandList(s.take())
		for list != nil {
			list.cb()
			list = list.next
		}

		s.scheduled.Store(false)
		if s.head.Load() == nil {
			return
		}
		// Something was pushed while we were draining or right as we
		// went idle. Try to reclaim scheduling duty ourselves; if
		// another producer's CAS already beat us to it, they've posted
		// a fresh perform task and we can safely stop.
		if !s.scheduled.CompareAndSwap(false, true) {
			return
		}
	}
}
