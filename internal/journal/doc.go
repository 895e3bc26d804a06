// Package journal records closed sessions and their events in SQLite.
//
// The journal is an audit and replay aid: every session the graph store
// closes is written with its outcome and its ordered events, encoded as
// canonical JSON with a SHA-256 digest per event. Replay reads committed
// sessions back in commit order.
//
// # Ordering
//
// Sessions are numbered by a logical sequence assigned at write time.
// Every query orders by (seq, position); timestamps are never stored.
//
// # Idempotency
//
// Writing a session id twice is a no-op that returns the stored record.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package journal
