// Package events is a small synchronous observer used by the storage engine
// to publish lifecycle events to operators and tests.
//
// Listeners subscribe to a Kind and receive every later Event of that kind,
// in subscription order, on the emitting goroutine. Cancelling a
// Subscription stops delivery immediately, including for an emission that
// is already in progress but has not reached that listener yet.
//
// A panicking listener never breaks the emitter: the panic is recovered,
// logged with its stack, counted and passed to the bus PanicHandler.
// The remaining listeners still receive the event.
package events
