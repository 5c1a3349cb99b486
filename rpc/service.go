// Package rpc is a thin dispatch scaffold over axon/socket: a Session
// owns one ConsistentSocket, receives one Message at a time on its own
// coroutine, and hands each to a pluggable RPCService. It intentionally
// carries no wire format or serializer — message framing is the
// caller's Buffer implementation's concern, not this package's.
package rpc

import "github.com/fast01/axon/socket"

// RPCService is the pluggable request handler a Session dispatches into.
// DispatchRequest is always posted through the owning Executor, so it
// never runs on the Reactor's own goroutine. RemoveSession is called
// once, when the session's receive loop observes a non-Success result
// and is about to exit for good.
type RPCService interface {
	DispatchRequest(msg *socket.Message, sess *Session)
	RemoveSession(sess *Session)
}
