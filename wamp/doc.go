// Package wamp implements a WAMP-style publish/subscribe client over
// WebSocket, covering the publisher and subscriber roles only.
//
// The primary lifecycle is:
//   - construct a Connection with NewConnection
//   - Connect to perform the subprotocol negotiation and HELLO/WELCOME
//     handshake, yielding a Client
//   - Subscribe to topics with callbacks and Publish events to topics
//   - Shutdown to run the goodbye exchange when finished
//
// Each session runs one background dispatch goroutine that owns the
// inbound half of the transport and invokes subscription callbacks
// synchronously, in router delivery order. Client methods are safe for
// concurrent use from any goroutine; every method writes at most one
// frame and frames never interleave on the wire. Callbacks that block
// stall all further inbound processing for their connection, including
// goodbye handling.
//
// Two wire serializations are supported, negotiated once per connection:
// JSON on text frames and msgpack on binary frames. Both carry the same
// self-describing field-name-keyed documents.
//
// Errors are reported as typed errors created with NewError and wrap
// address, transport, decode, protocol sequence, and send causes. There
// is no reconnection policy: after a connection is lost, a caller
// re-invokes Connect and subscribes again.
package wamp
