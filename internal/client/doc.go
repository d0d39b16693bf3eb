// Package client implements the connection-side of roomcast: a
// Manager owning exactly one WebSocket connection with automatic
// reconnection, and named Channels multiplexed over it.
//
// The Manager:
//   - Drives a four-state lifecycle (Disconnected, Connecting,
//     Connected, Failed) from transport events
//   - Reconnects with jittered exponential backoff up to a configured
//     attempt budget
//   - Re-issues every channel subscription after each successful open
//
// Channels are process-wide singletons per name within a Manager and
// survive connection replacement. Publishing while disconnected fails
// immediately; nothing is queued or replayed.
package client
