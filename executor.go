package axon

import (
	"container/list"
	"sync"
)

// Executor is a multi-worker task queue. Any number of goroutines may call
// Run concurrently; each becomes a worker that dequeues and executes
// posted callbacks until the Executor's termination condition is met.
//
// Run returns only once the task queue is empty and the work counter is
// zero (see AddWork/RemoveWork) — mirroring the "outstanding work" idiom
// used by reference-counted event-loop executors, generalized from the
// single-loop channel-driven design of the teacher package this runtime
// grew out of.
type Executor struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    list.List // of func()
	work int64
}

// NewExecutor creates an Executor with an empty task queue and zero work.
func NewExecutor() *Executor {
	e := &Executor{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Post appends cb to the task queue and wakes one idle worker.
func (e *Executor) Post(cb func()) {
	e.mu.Lock()
	e.q.PushBack(cb)
	e.mu.Unlock()
	e.cond.Signal()
}

// AddWork records one outstanding reason to keep Run from returning.
func (e *Executor) AddWork() {
	e.mu.Lock()
	e.work++
	e.mu.Unlock()
}

// RemoveWork releases one outstanding work reason. Once the counter
// reaches zero, every worker blocked in Run is woken to re-check the
// termination condition.
func (e *Executor) RemoveWork() {
	e.mu.Lock()
	e.work--
	done := e.work == 0
	e.mu.Unlock()
	if done {
		e.cond.Broadcast()
	} else {
		e.cond.Signal()
	}
}

// done reports whether the termination predicate — empty queue and zero
// work — currently holds. Caller must hold e.mu.
func (e *Executor) done() bool {
	return e.q.Len() == 0 && e.work == 0
}

// Run turns the calling goroutine into a worker: it dequeues and executes
// callbacks until the queue is empty and the work counter is zero. Run is
// reentrant across goroutines — many workers may call it concurrently,
// and no ordering is promised between callbacks run on different
// workers. A callback that panics takes its worker down; Executor never
// recovers on a worker's behalf.
func (e *Executor) Run() {
	for {
		e.mu.Lock()
		for e.q.Len() == 0 && e.work != 0 {
			e.cond.Wait()
		}
		if e.done() {
			e.mu.Unlock()
			return
		}
		front := e.q.Front()
		e.q.Remove(front)
		e.mu.Unlock()

		front.Value.(func())()
	}
}

// Pending reports the current task-queue length, for diagnostics/tests.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.Len()
}
