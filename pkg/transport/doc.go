// Package transport implements the Coop connection layer.
//
// The transport layer handles:
//   - The greeting handshake and per-connection state machine
//   - Framed reads with a per-wait stall deadline
//   - Keep-alive ping/pong for connection liveness
//   - Per-address TCP listeners with optional free-port search
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Chat / Editor / Participants │
//	├────────────────────────────────┤
//	│  Token|||Length|||Payload      │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Connection Lifecycle
//
// A connection starts in WAITING_FOR_GREETING. The side that dialed
// sends its greeting immediately; the accepting side answers with its
// own greeting after the peer's arrives. Once the greeting is parsed,
// the peer's hostname resolved, the ban list consulted and (when
// required) the user confirmation obtained, the connection reaches
// READY_FOR_USE and stays there until closed. Application frames
// received before READY_FOR_USE abort the connection.
//
// # Keep-Alive
//
// Connection liveness is monitored with ping/pong frames:
//   - Ping interval: 5 seconds
//   - Pong loss tolerance: 60 seconds
//   - Mid-frame stall timeout: 30 seconds
//
// These values are fixed by the wire protocol; changing them breaks
// interoperability with existing peers.
package transport
