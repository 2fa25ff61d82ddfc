package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Username is the resolved peer identity "user@host@port"
	// (populated once the handshake completed).
	Username string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`  // Transport layer
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`  // Connection/session state
	ControlMsg  *ControlMsgEvent  `cbor:"10,keyasint,omitempty"` // Ping/pong
	Chat        *ChatEvent        `cbor:"11,keyasint,omitempty"` // Chat and editor traffic
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message decoding layer (typed frames).
	LayerWire Layer = 1
	// LayerSession is the peer registry / session layer.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates application traffic (chat, editor,
	// participant exchange).
	CategoryMessage Category = 0
	// CategoryControl indicates a control message (ping/pong).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (header included).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures a state transition.
type StateChangeEvent struct {
	// Entity identifies what changed state.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state name (empty for initial).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state name.
	NewState string `cbor:"3,keyasint"`

	// Reason optionally explains the transition.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity identifies the entity whose state changed.
type StateEntity uint8

const (
	// StateEntityConnection is a single peer connection.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the local session (listening state,
	// participant membership).
	StateEntitySession StateEntity = 1
)

// String returns the entity name.
func (e StateEntity) String() string {
	switch e {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures a ping or pong.
type ControlMsgEvent struct {
	// Type is the control message type.
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ControlMsgType identifies a control message.
type ControlMsgType uint8

const (
	// ControlMsgPing is a liveness probe.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong answers a ping.
	ControlMsgPong ControlMsgType = 1
)

// String returns the control message type name.
func (t ControlMsgType) String() string {
	switch t {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// ChatEvent captures decoded application traffic.
type ChatEvent struct {
	// MessageType is the wire token (MESSAGE, EDITOR, ...).
	MessageType string `cbor:"1,keyasint"`

	// Size is the payload size in bytes.
	Size int `cbor:"2,keyasint"`

	// Sender is the peer identity for inbound traffic.
	Sender string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context optionally names the operation that failed.
	Context string `cbor:"2,keyasint,omitempty"`
}
