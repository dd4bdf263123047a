// Package wire implements the client side of the line-framed Redis
// request/reply protocol used by the folio engine.
//
// A Client is a stateful, single-goroutine TCP session. Each operation
// sends one request and blocks for one reply, except inside a transaction
// (Multi/Exec) where queued operations are acknowledged individually and
// resolved by Exec, and inside a Pipeline where replies are read in one
// batch on scope exit.
//
// Transport errors invalidate the session: the client must be closed and
// discarded. A server-reported error leaves the session usable, except
// inside a transaction where Discard must be called.
package wire
