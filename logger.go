package axon

// Logger is the minimal leveled-logging surface the Reactor and the
// socket package depend on. *axonlog.Logger satisfies it; any type
// with these methods does. A nil Logger is valid everywhere it's
// accepted and simply discards output.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
