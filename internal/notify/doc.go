// Package notify is the per-domain event bus.
//
// Notification happens in two phases. NotifyEvent publishes each event on
// its "...ing" channel at the moment of mutation. NotifySessionCompleted
// runs once when the session closes and, for committed sessions, replays
// the session's events on the "...ed" channels.
//
// Observers are isolated from one another and from the publisher: an
// observer that fails or panics is logged against the session and the
// remaining observers still run.
package notify
