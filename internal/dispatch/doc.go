// Package dispatch routes events to handlers by kind and executes the
// commands they return.
//
// Handlers declare the kinds they accept through Capabilities. The
// dispatcher reads that set once, at registration, and stores a direct
// invocation per kind; routing an event is a map lookup, with no type
// inspection on the per-event path.
//
// Events no handler accepts are relayed into the active session when they
// came from another session, which is how changes made elsewhere flow into
// a session that is currently open.
//
// Unlike observers on the event bus, handlers are part of the transaction:
// their failures are returned to the caller.
package dispatch
