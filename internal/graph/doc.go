// Package graph is the in-memory graph store: named domain models holding
// entities, relationships and property values under a schema registry.
//
// Every mutation goes through a session. The mutation API builds an event,
// records it in the session, applies it to the domain and publishes it on
// the domain's pre-phase channels. Sessions opened with Store.BeginSession
// carry the commit path:
//
//  1. Check constraints run over the elements the session touched. Errors
//     that are not silenced veto the commit.
//  2. A vetoed or aborted session is rolled back by applying the inverse of
//     its events in reverse order.
//  3. Each domain replays the session on its post-phase channels.
//  4. The session is written to the journal, when one is configured.
package graph
