// Package broker implements the server-side room engine.
//
// A Room holds the participant set for one session id and fans out
// updates to every open participant connection. Session-specific
// behavior (what a message means, what a state snapshot contains) is a
// Behavior strategy produced by a registered session-type factory; the
// Room and its broadcaster never interpret payloads.
//
// Rooms are created lazily on first join and destroyed when the last
// participant leaves; nothing survives a room's destruction.
package broker
