// Package axon implements the concurrency and I/O substrate of an
// asynchronous network and RPC runtime: a single-threaded, edge-triggered
// readiness reactor, a multi-worker executor, and a serializing strand
// built on top of it.
//
// Higher-level pieces — the stackful-equivalent coroutine primitive, the
// self-healing consistent socket, and the RPC session scaffold — live in
// the axon/coroutine, axon/socket and axon/rpc subpackages and are built
// entirely on the public API exposed here.
package axon
