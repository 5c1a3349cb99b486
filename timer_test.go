package axon

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFiresAfterDuration(t *testing.T) {
	ex := NewExecutor()
	tm := NewTimer(ex)

	start := time.Now()
	var elapsed time.Duration
	var gotErr error

	ex.AddWork()
	tm.ExpiresFromNow(60 * time.Millisecond)
	tm.AsyncWait(func(err error) {
		elapsed = time.Since(start)
		gotErr = err
		ex.RemoveWork()
	})

	ex.Run()

	require.NoError(t, gotErr)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestTimerCancelDeliversCanceledError(t *testing.T) {
	ex := NewExecutor()
	tm := NewTimer(ex)

	var gotErr error
	done := make(chan struct{})

	ex.AddWork()
	tm.ExpiresFromNow(time.Hour)
	tm.AsyncWait(func(err error) {
		gotErr = err
		close(done)
		ex.RemoveWork()
	})
	tm.Cancel()

	ex.Run()
	<-done
	assert.ErrorIs(t, gotErr, ErrTimerCanceled)
}

func TestManyTimersScheduleIndependently(t *testing.T) {
	ex := NewExecutor()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(n)
	ex.AddWork()

	timers := make([]*Timer, n)
	for i := 0; i < n; i++ {
		timers[i] = NewTimer(ex)
		timers[i].ExpiresFromNow(time.Duration(i) * time.Millisecond)
		timers[i].AsyncWait(func(err error) {
			assert.NoError(t, err)
			wg.Done()
		})
	}
	ex.RemoveWork()

	go ex.Run()
	wg.Wait()
}

func TestRearmingTimerCancelsPreviousWait(t *testing.T) {
	ex := NewExecutor()
	tm := NewTimer(ex)

	var results []error
	var mu sync.Mutex

	ex.AddWork()
	tm.ExpiresFromNow(time.Hour)
	tm.AsyncWait(func(err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	})

	tm.ExpiresFromNow(10 * time.Millisecond)
	tm.AsyncWait(func(err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
		ex.RemoveWork()
	})

	ex.Run()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0], ErrTimerCanceled)
	assert.NoError(t, results[1])
}
