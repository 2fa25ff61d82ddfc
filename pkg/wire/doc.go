// Package wire implements the Coop wire format.
//
// Every message on the wire is a single frame:
//
//	<TYPE>|||<LENGTH>|||<PAYLOAD>
//
// where TYPE is one of seven fixed ASCII tokens (MESSAGE, PING, PONG,
// GREETING, GET_PARTICIPANTS, PARTICIPANTS, EDITOR), LENGTH is the
// payload byte count in ASCII decimal, and PAYLOAD is UTF-8 text of
// exactly LENGTH bytes. The separator is the literal three bytes "|||".
//
// The format is deliberately text-based so that a session can be
// debugged with nothing more than a packet capture. It is still a
// length-prefixed framing: after the header no scanning is required,
// the payload is read as an exact byte count.
//
// # Decoding
//
// Decoder reads frames incrementally and tolerates arbitrary short
// reads from the underlying reader; a frame split at any byte boundary
// decodes identically to one delivered whole. Header fields are
// buffered at most MaxBufferSize (1 MiB) before the stream is declared
// malformed, which bounds memory for a peer that never sends the
// separator.
//
// # Payload grammars
//
// GREETING carries "user:port". PARTICIPANTS carries the literal
// "<empty>" or "host@port" entries joined by the separator. EDITOR
// carries three separator-joined fields: project hash, relative file
// name, command text. PING and PONG carry a single ignored byte.
package wire
