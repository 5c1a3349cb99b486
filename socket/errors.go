package socket

import "errors"

var (
	// ErrClosed is returned by Socket operations issued after Shutdown.
	ErrClosed = errors.New("socket: closed")
	// ErrAlreadyAssigned is returned by Assign when the Socket already
	// owns an fd.
	ErrAlreadyAssigned = errors.New("socket: already assigned")
	// ErrNotAssigned is returned by operations issued before Assign or
	// AsyncConnect has given the Socket an fd.
	ErrNotAssigned = errors.New("socket: fd not assigned")

	// errDialTimeout marks a connect attempt abandoned by the connect
	// loop's dial-timeout race, not a reactor or OS level failure.
	errDialTimeout = errors.New("socket: dial timeout")
)
