// Package archive implements the batched room-event writer.
//
// The broker emits an Event for every room creation, join, leave, and
// destruction. The Archiver batches them and writes to the room_events
// table (append-only) for offline analytics. Rooms never read this data
// back; losing it never affects live sessions, so the input is
// non-blocking and drops under backpressure.
package archive
