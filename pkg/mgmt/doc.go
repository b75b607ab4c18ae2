// Package mgmt implements the management control plane: a WebSocket
// endpoint on a dedicated listener where operator tooling opens persistent
// sessions to inspect and mutate the running server.
//
// Every inbound message is a JSON object tagged by a "type" field. Each
// command receives exactly one direct reply on the issuing session.
// State-changing commands additionally broadcast a notification to every
// other connected session, so concurrent management clients converge on
// the new state without polling.
//
// Sessions own a bounded outbound queue. A client that stops draining its
// queue is disconnected rather than allowed to block replies or
// broadcasts for everyone else.
package mgmt
