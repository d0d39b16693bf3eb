// Package protocol defines the wire frames exchanged between clients
// and the broker.
//
// Three frame kinds exist:
//   - subscribe: a client declares interest in a channel
//   - publish: an application message on a channel/event
//   - system: broker-level messages (join_room, error, ...)
//
// Payloads are opaque JSON; the broker and the multiplexing layer never
// interpret them. Transport errors are normalized into a single Error
// shape before reaching application code.
package protocol
