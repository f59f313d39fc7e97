// Package socket owns the duplex connection to the assistant backend and
// keeps the conversation state consistent while events arrive out of order,
// duplicated, or interleaved with user actions.
//
// The session is the only component that touches the connection handle.
// Everything it learns is published through the reactive store: handlers
// translate inbound events into store mutations, and collaborators react by
// subscribing to the keys they care about. There is no path from a socket
// event to a rendering collaborator that does not pass through the store.
//
// # Connection lifecycle
//
//	NoConnection -> Connecting -> Connected -> Disconnected -> Connecting ...
//
// Connect is a no-op while a dial is in progress or a connection is live,
// so racing calls produce exactly one physical connection. The permanent
// handler set is attached exactly once per physical connection, guarded by
// a registration flag that resets on teardown. Every connection carries a
// generation number; events read from a superseded generation are dropped,
// which isolates a reconnect from its predecessor without explicit
// unsubscription.
//
// # Round trips
//
// Exchanges that wait for exactly one acknowledgement (starting or
// stopping a transcription session) go through roundTrip: emit the
// request, then settle on whichever of the success event, the error
// event, a disconnect, or the timeout fires first. The one-shot listeners
// are removed before the call returns, whatever happened.
//
// # Cancellation
//
// Cancelling a generation is advisory. The cancel request goes out only if
// the target conversation is the one currently awaiting a response, and
// the processing marker stays set until the server sends a terminal
// event; fragments keep being folded into the history until then.
package socket
