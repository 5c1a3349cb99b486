package coroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoroutineResumeYieldSequence(t *testing.T) {
	val := 0
	co := New()
	co.SetFunc(func(c *Coroutine) {
		val++
		c.Yield()
		val++
		c.Yield()
		val++
		c.Yield()
		val++
	})

	for i := 0; i < 4; i++ {
		co.Resume()
		assert.Equal(t, i+1, val)
	}

	// finished: further resumes are no-ops.
	co.Resume()
	co.Resume()
	assert.Equal(t, 4, val)
	assert.True(t, co.Finished())
}

func TestCoroutinePanicTransportedOnce(t *testing.T) {
	val := 0
	co := New()
	boom := errors.New("exception")
	co.SetFunc(func(c *Coroutine) {
		val++
		c.Yield()
		panic(boom)
	})

	co.Resume()
	assert.Equal(t, 1, val)

	require.PanicsWithValue(t, boom, func() { co.Resume() })
	assert.Equal(t, 1, val)

	// the panic was delivered exactly once; later resumes are quiet no-ops.
	co.Resume()
	co.Resume()
	assert.Equal(t, 1, val)
	assert.True(t, co.Finished())
}

func TestNestedCoroutines(t *testing.T) {
	co1 := New()
	co2 := New()
	n := 0

	co2.SetFunc(func(c *Coroutine) {
		n++
		c.Yield()
		n++
		c.Yield()
		n++
	})
	co1.SetFunc(func(c *Coroutine) {
		co2.Resume()
		c.Yield()
		co2.Resume()
		c.Yield()
		co2.Resume()
	})

	co1.Resume()
	assert.Equal(t, 1, n)
	co1.Resume()
	assert.Equal(t, 2, n)
	co1.Resume()
	assert.Equal(t, 3, n)
}
