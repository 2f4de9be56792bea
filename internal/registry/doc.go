// Package registry maintains the live directory of connected devices.
//
// A Record exists if and only if its underlying connection is currently open
// and has completed the registration handshake. Records are keyed by
// connection identity: a unique handle assigned per connection, valid only
// for that connection's lifetime. The same physical device reconnecting gets
// a fresh identity.
//
// The registry is the only shared mutable structure in the relay core. All
// methods are safe for concurrent use from arbitrarily many connection
// handlers; List returns a point-in-time snapshot that never blocks writers
// beyond the copy.
package registry
