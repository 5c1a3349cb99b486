package socket

import (
	"time"

	"github.com/fast01/axon"
)

// config holds the tunables a ConsistentSocket is constructed with,
// following the functional-options idiom (as ygrebnov-workers uses for
// its worker pool) rather than a sprawling constructor argument list.
type config struct {
	logger axon.Logger

	queueCap int

	backoffBase   time.Duration
	backoffFactor float64
	backoffCap    time.Duration

	dialTimeout time.Duration
}

func defaultConfig() config {
	return config{
		queueCap:      1000,
		backoffBase:   50 * time.Millisecond,
		backoffFactor: 2,
		backoffCap:    2 * time.Second,
		dialTimeout:   10 * time.Second,
	}
}

// Option configures a ConsistentSocket at construction time.
type Option func(*config)

// WithLogger attaches a logger; nil (the default) discards everything.
func WithLogger(l axon.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithQueueCapacity overrides the default 1000-entry bound on each of
// the read and write queues.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCap = n
		}
	}
}

// WithBackoff overrides the reconnect backoff schedule: base is the
// first retry delay, factor multiplies it after each failed attempt,
// and cap bounds the result. This resolves the source's open question
// about do_reconnect's schedule with a bounded exponential policy.
func WithBackoff(base time.Duration, factor float64, cap time.Duration) Option {
	return func(c *config) {
		if base > 0 {
			c.backoffBase = base
		}
		if factor > 1 {
			c.backoffFactor = factor
		}
		if cap > 0 {
			c.backoffCap = cap
		}
	}
}

// WithDialTimeout bounds how long a single connect attempt may take
// before the connect loop treats it as a failure and backs off.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}
