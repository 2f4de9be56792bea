// Package broadcast fans out asynchronous device events to observers.
//
// Devices emit responses on their own schedule; the broadcaster delivers each
// event, annotated with the originating connection identity, to every
// subscriber registered at publish time. Delivery is best-effort: there is no
// buffering for observers that subscribe later, a slow subscriber's events
// are dropped rather than blocking the publisher, and there are no
// per-command correlation IDs. Matching a response to a sent command is
// advisory (same identity, temporal proximity).
//
// Subscriber lifetime is explicit: Subscribe returns a handle whose channel
// stays open until Unsubscribe (or Close) is called.
package broadcast
