package transport

import (
	"context"
	"net"

	"github.com/coop-protocol/coop-go/pkg/wire"
)

// Handler receives connection events. All callbacks for one connection
// are invoked sequentially from that connection's read goroutine;
// OnReady fires exactly once, before any application traffic callback,
// and exactly one of OnRefused or OnDisconnected fires last.
type Handler interface {
	// OnReady is called once the handshake completed and the
	// connection entered READY_FOR_USE.
	OnReady(c *Conn)

	// OnMessage is called with the text of a received chat message.
	OnMessage(c *Conn, text string)

	// OnGetParticipants is called when the peer requests the
	// participant list. The owner answers via SendParticipants.
	OnGetParticipants(c *Conn)

	// OnParticipants is called with a received participant list.
	OnParticipants(c *Conn, list []wire.Participant)

	// OnEditorCommand is called with a received editor command.
	OnEditorCommand(c *Conn, cmd wire.EditorCommand)

	// OnRejected is called when the peer was turned away during the
	// handshake (banned, or confirmation declined). The connection is
	// aborted afterwards.
	OnRejected(c *Conn, reason string)

	// OnError is called for transport errors and protocol violations.
	// A clean close by the peer is not reported here.
	OnError(c *Conn, err error)

	// OnRefused is called, instead of OnDisconnected, when the
	// connection went away before a greeting was ever processed.
	OnRefused(c *Conn)

	// OnDisconnected is called when an established connection goes
	// away, whatever the cause.
	OnDisconnected(c *Conn)
}

// Acceptor decides whether an inbound peer may join. Implementations
// typically ask the user; the call may block the connection's read
// goroutine but no other connection.
type Acceptor interface {
	// AcceptConnection reports whether the peer identified by user
	// and host may join the session.
	AcceptConnection(user, host string) bool
}

// AcceptorFunc adapts a function to the Acceptor interface.
type AcceptorFunc func(user, host string) bool

// AcceptConnection calls f.
func (f AcceptorFunc) AcceptConnection(user, host string) bool {
	return f(user, host)
}

// Resolver resolves a peer IP address to a hostname for identity
// purposes.
type Resolver interface {
	// ReverseLookup returns the hostname for addr, or addr itself if
	// no name can be resolved.
	ReverseLookup(addr string) string
}

// DNSResolver is the default Resolver, backed by the system's reverse
// DNS lookup.
type DNSResolver struct{}

// ReverseLookup resolves addr via reverse DNS, falling back to addr.
func (DNSResolver) ReverseLookup(addr string) string {
	names, err := net.DefaultResolver.LookupAddr(context.Background(), addr)
	if err != nil || len(names) == 0 {
		return addr
	}
	// Reverse records are fully qualified; identities use the bare name.
	name := names[0]
	if len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}
	return name
}

// Compile-time interface satisfaction checks.
var (
	_ Acceptor = AcceptorFunc(nil)
	_ Resolver = DNSResolver{}
)
