package wire

import (
	"errors"
	"fmt"
	"strconv"
)

// Wire format constants.
const (
	// Separator delimits the header fields and list payloads.
	Separator = "|||"

	// SeparatorSize is the length of Separator in bytes.
	SeparatorSize = len(Separator)

	// MaxBufferSize is the maximum number of bytes buffered while
	// looking for a separator. Exceeding it aborts the stream.
	MaxBufferSize = 1024 * 1024

	// EmptyListPayload is the PARTICIPANTS payload for an empty list.
	EmptyListPayload = "<empty>"
)

// Framing errors.
var (
	// ErrUnknownType indicates a header token outside the fixed set.
	ErrUnknownType = errors.New("unknown message type")

	// ErrBadLength indicates a zero, negative or unparsable length field.
	ErrBadLength = errors.New("malformed frame length")

	// ErrBufferOverflow indicates a header exceeded MaxBufferSize
	// without a separator appearing.
	ErrBufferOverflow = errors.New("frame header exceeds buffer limit")

	// ErrMalformedPayload indicates a payload that does not match its
	// type's grammar.
	ErrMalformedPayload = errors.New("malformed payload")
)

// MessageType identifies a protocol message.
type MessageType int

const (
	// TypeUndefined is the zero value used between frames.
	TypeUndefined MessageType = iota

	// TypeMessage is a chat message.
	TypeMessage

	// TypePing is a liveness probe.
	TypePing

	// TypePong answers a ping.
	TypePong

	// TypeGreeting is the handshake message.
	TypeGreeting

	// TypeGetParticipants requests the peer's participant list.
	TypeGetParticipants

	// TypeParticipants carries a participant list.
	TypeParticipants

	// TypeEditor carries an editor collaboration command.
	TypeEditor
)

// Wire tokens, by message type.
var typeTokens = map[MessageType]string{
	TypeMessage:         "MESSAGE",
	TypePing:            "PING",
	TypePong:            "PONG",
	TypeGreeting:        "GREETING",
	TypeGetParticipants: "GET_PARTICIPANTS",
	TypeParticipants:    "PARTICIPANTS",
	TypeEditor:          "EDITOR",
}

var tokenTypes = func() map[string]MessageType {
	m := make(map[string]MessageType, len(typeTokens))
	for t, tok := range typeTokens {
		m[tok] = t
	}
	return m
}()

// String returns the wire token for the message type.
func (t MessageType) String() string {
	if tok, ok := typeTokens[t]; ok {
		return tok
	}
	return "UNDEFINED"
}

// ParseType maps a wire token to its message type.
func ParseType(token string) (MessageType, error) {
	if t, ok := tokenTypes[token]; ok {
		return t, nil
	}
	return TypeUndefined, fmt.Errorf("%w: %q", ErrUnknownType, token)
}

// Frame is one decoded protocol message.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// EncodeFrame builds the wire bytes for a frame of the given type.
func EncodeFrame(t MessageType, payload []byte) []byte {
	token := t.String()
	length := strconv.Itoa(len(payload))

	buf := make([]byte, 0, len(token)+len(length)+2*SeparatorSize+len(payload))
	buf = append(buf, token...)
	buf = append(buf, Separator...)
	buf = append(buf, length...)
	buf = append(buf, Separator...)
	buf = append(buf, payload...)
	return buf
}
