package axon

import "errors"

var (
	// ErrReactorClosed is returned by RegisterFD/StartEvent once the
	// process-wide Reactor has been shut down.
	ErrReactorClosed = errors.New("axon: reactor closed")
	// ErrFDAlreadyRegistered is returned by RegisterFD for a duplicate
	// registration of the same file descriptor; a programmer error.
	ErrFDAlreadyRegistered = errors.New("axon: fd already registered")
)
