// Package service ties the transport layer together into a chat session.
//
// A Client listens on every local interface address, dials peers, and
// maintains the registry of live connections keyed by peer address. All
// session-level behavior lives here: participant discovery, message and
// editor-command fan-out, and moderation (banning and kicking users).
package service
