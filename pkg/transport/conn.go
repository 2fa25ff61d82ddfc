package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coop-protocol/coop-go/pkg/config"
	"github.com/coop-protocol/coop-go/pkg/log"
	"github.com/coop-protocol/coop-go/pkg/wire"
)

// Protocol timing constants. Fixed for interoperability.
const (
	// PingInterval is the time between liveness probes.
	PingInterval = 5 * time.Second

	// PongTimeout is how long a peer may go without answering probes
	// before it is presumed dead.
	PongTimeout = 60 * time.Second

	// TransferTimeout is the maximum wait for further bytes of a
	// partially received frame.
	TransferTimeout = 30 * time.Second

	// MaxLogFrameDataSize is the maximum frame data size to include in
	// log events. Larger frames are truncated in the event record.
	MaxLogFrameDataSize = 4096
)

// Connection states. The state only ever advances.
type State int32

const (
	// StateWaitingForGreeting means no greeting has been received yet.
	StateWaitingForGreeting State = iota

	// StateReadingGreeting means the greeting frame arrived and is
	// being validated.
	StateReadingGreeting

	// StateReadyForUse is the terminal operating state.
	StateReadyForUse
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWaitingForGreeting:
		return "WAITING_FOR_GREETING"
	case StateReadingGreeting:
		return "READING_GREETING"
	case StateReadyForUse:
		return "READY_FOR_USE"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	// ErrNotReady indicates a send attempt before the handshake
	// completed.
	ErrNotReady = errors.New("connection not ready for use")

	// ErrProtocolViolation indicates the peer broke the protocol.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrPongTimeout indicates the peer stopped answering pings.
	ErrPongTimeout = errors.New("no pong received within timeout")

	// ErrConnectionClosed indicates use of an aborted connection.
	ErrConnectionClosed = errors.New("connection closed")

	// errRejected and errDeclined terminate the read loop without a
	// generic error event; the handshake callbacks already told the
	// application what happened.
	errRejected = errors.New("peer rejected")
	errDeclined = errors.New("connection declined")
)

// ConnConfig configures a connection.
type ConnConfig struct {
	// Greeting is the local identity announced to the peer.
	Greeting wire.Greeting

	// Prefs supplies the ban list and accept policy.
	Prefs config.Preferences

	// Acceptor confirms inbound peers when auto-accept is off.
	// When nil, such peers are declined.
	Acceptor Acceptor

	// Resolver resolves peer hostnames. Defaults to DNSResolver.
	Resolver Resolver

	// Logger captures protocol events (optional).
	Logger log.Logger

	// Timing overrides for tests; zero values select the protocol
	// constants.
	PingInterval    time.Duration
	PongTimeout     time.Duration
	TransferTimeout time.Duration
}

func (cfg *ConnConfig) applyDefaults() {
	if cfg.Resolver == nil {
		cfg.Resolver = DNSResolver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = PingInterval
	}
	if cfg.PongTimeout == 0 {
		cfg.PongTimeout = PongTimeout
	}
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = TransferTimeout
	}
}

// Conn is one peer connection: the framing codec plus the handshake
// state machine.
type Conn struct {
	cfg     ConnConfig
	handler Handler

	conn  net.Conn
	stall *stallReader
	dec   *wire.Decoder

	connID string
	state  atomic.Int32

	keepAlive *KeepAlive

	greetingSent atomic.Bool
	closeOnce    sync.Once
	closed       chan struct{}
	writeMu      sync.Mutex

	mu         sync.Mutex
	username   string
	serverPort uint16
}

// Dial opens an outbound connection to address and starts its read
// loop. The greeting is sent immediately, per the protocol's rule for
// the connecting side.
func Dial(ctx context.Context, address string, cfg ConnConfig, handler Handler) (*Conn, error) {
	dialer := &net.Dialer{}
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := newConn(nc, cfg, handler)
	if err := c.sendGreeting(); err != nil {
		c.Abort()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// Accept wraps an inbound socket and starts its read loop. The local
// greeting is held back until the peer's greeting has been processed.
func Accept(nc net.Conn, cfg ConnConfig, handler Handler) *Conn {
	c := newConn(nc, cfg, handler)
	go c.readLoop()
	return c
}

func newConn(nc net.Conn, cfg ConnConfig, handler Handler) *Conn {
	cfg.applyDefaults()

	stall := &stallReader{conn: nc, timeout: cfg.TransferTimeout}
	c := &Conn{
		cfg:     cfg,
		handler: handler,
		conn:    nc,
		stall:   stall,
		dec:     wire.NewDecoder(stall),
		connID:  uuid.New().String(),
		closed:  make(chan struct{}),
	}
	c.state.Store(int32(StateWaitingForGreeting))
	return c
}

// ConnID returns the unique connection identifier.
func (c *Conn) ConnID() string {
	return c.connID
}

// State returns the current handshake state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Username returns the resolved peer identity "user@host@port", or ""
// before the greeting was processed.
func (c *Conn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// ServerPort returns the listen port the peer advertised in its
// greeting, or 0 before the greeting was processed.
func (c *Conn) ServerPort() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverPort
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// PeerHost returns the IP address (host part) of the remote endpoint.
func (c *Conn) PeerHost() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// PeerPort returns the TCP source port of the remote endpoint.
func (c *Conn) PeerPort() uint16 {
	_, portStr, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return 0
	}
	port, _ := strconv.ParseUint(portStr, 10, 16)
	return uint16(port)
}

// Abort tears the connection down immediately, discarding any frame in
// flight. Safe to call from any goroutine and more than once.
func (c *Conn) Abort() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		c.conn.Close()
	})
}

// Closed reports whether the connection has been aborted.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// SendMessage sends a chat message. The text must be non-empty and the
// connection ready.
func (c *Conn) SendMessage(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty message", wire.ErrMalformedPayload)
	}
	if c.State() != StateReadyForUse {
		return ErrNotReady
	}
	return c.writeFrame(wire.TypeMessage, []byte(text))
}

// SendGetParticipants asks the peer for its participant list.
func (c *Conn) SendGetParticipants() error {
	if c.State() != StateReadyForUse {
		return ErrNotReady
	}
	return c.writeFrame(wire.TypeGetParticipants, []byte("l"))
}

// SendParticipants sends a participant list to the peer.
func (c *Conn) SendParticipants(list []wire.Participant) error {
	if c.State() != StateReadyForUse {
		return ErrNotReady
	}
	return c.writeFrame(wire.TypeParticipants, wire.EncodeParticipants(list))
}

// SendEditorCommand sends an editor collaboration command.
func (c *Conn) SendEditorCommand(cmd wire.EditorCommand) error {
	if c.State() != StateReadyForUse {
		return ErrNotReady
	}
	return c.writeFrame(wire.TypeEditor, wire.EncodeEditorCommand(cmd))
}

// sendGreeting sends the local greeting once; later calls are no-ops.
func (c *Conn) sendGreeting() error {
	if !c.greetingSent.CompareAndSwap(false, true) {
		return nil
	}
	return c.writeFrame(wire.TypeGreeting, wire.EncodeGreeting(c.cfg.Greeting))
}

// writeFrame writes one complete frame. A short or failed write fails
// the call; there is no partial-write resume, the connection is simply
// unusable afterwards.
func (c *Conn) writeFrame(t wire.MessageType, payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	frame := wire.EncodeFrame(t, payload)

	c.writeMu.Lock()
	_, err := c.conn.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("writing %s frame: %w", t, err)
	}

	c.logFrame(frame, log.DirectionOut)
	return nil
}

// readLoop drives the connection until it dies. It is the only reader
// of the socket and the only caller of the handler, which gives every
// connection strictly ordered, at-most-once event delivery.
func (c *Conn) readLoop() {
	err := c.run()

	before := c.State() == StateWaitingForGreeting
	quiet := err == nil || c.silent(err)
	c.Abort()

	if !quiet {
		c.logError(err)
		c.handler.OnError(c, err)
	}

	// A connection that never got through a greeting is reported as
	// refused, not as a lost participant.
	if before {
		c.handler.OnRefused(c)
	} else {
		c.handler.OnDisconnected(c)
	}
}

func (c *Conn) run() error {
	for {
		// Idle wait for the next frame: no deadline. Liveness of a
		// silent peer is the keep-alive's job.
		if err := c.dec.WaitInput(); err != nil {
			return err
		}

		// From the first byte on, every further wait must make
		// progress within TransferTimeout.
		c.stall.arm()
		frame, err := c.dec.ReadFrame()
		c.stall.disarm()
		if err != nil {
			return err
		}

		c.logFrameIn(frame)

		if err := c.dispatch(frame); err != nil {
			return err
		}

		select {
		case <-c.closed:
			return nil
		default:
		}
	}
}

// dispatch routes one frame according to the current state.
func (c *Conn) dispatch(frame wire.Frame) error {
	switch c.State() {
	case StateWaitingForGreeting:
		if frame.Type != wire.TypeGreeting {
			return fmt.Errorf("%w: %s frame before greeting", ErrProtocolViolation, frame.Type)
		}
		c.setState(StateReadingGreeting)
		return c.processGreeting(frame.Payload)

	case StateReadyForUse:
		return c.processFrame(frame)

	default:
		// READING_GREETING never sees a frame: the greeting is
		// validated synchronously above.
		return fmt.Errorf("%w: frame in state %s", ErrProtocolViolation, c.State())
	}
}

// processGreeting validates the peer's greeting and, if the peer is
// admitted, completes the handshake.
func (c *Conn) processGreeting(payload []byte) error {
	g, err := wire.ParseGreeting(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	host := c.cfg.Resolver.ReverseLookup(c.PeerHost())
	bareIdentity := g.Username + "@" + host

	c.mu.Lock()
	c.username = bareIdentity + "@" + strconv.Itoa(int(c.PeerPort()))
	c.serverPort = g.Port
	c.mu.Unlock()

	if c.isBanned(bareIdentity) {
		reason := fmt.Sprintf("connection attempt by banned user %q", bareIdentity)
		c.logState("REJECTED", reason)
		c.handler.OnRejected(c, reason)
		return errRejected
	}

	// A peer whose greeting port matches its source port is one we
	// dialed ourselves; only unsolicited peers need confirmation.
	if g.Port != c.PeerPort() && !c.cfg.Prefs.AutoAcceptConnections() {
		if c.cfg.Acceptor == nil || !c.cfg.Acceptor.AcceptConnection(g.Username, host) {
			c.logState("DECLINED", "connection not accepted")
			return errDeclined
		}
	}

	if err := c.sendGreeting(); err != nil {
		return err
	}

	c.startKeepAlive()
	c.setState(StateReadyForUse)
	c.handler.OnReady(c)
	return nil
}

// processFrame handles application traffic once ready.
func (c *Conn) processFrame(frame wire.Frame) error {
	switch frame.Type {
	case wire.TypeMessage:
		c.handler.OnMessage(c, string(frame.Payload))

	case wire.TypePing:
		c.logControl(log.ControlMsgPing, log.DirectionIn)
		if err := c.writeFrame(wire.TypePong, wire.PingPayload); err != nil {
			return err
		}
		c.logControl(log.ControlMsgPong, log.DirectionOut)

	case wire.TypePong:
		c.logControl(log.ControlMsgPong, log.DirectionIn)
		c.keepAlive.PongReceived()

	case wire.TypeGetParticipants:
		c.handler.OnGetParticipants(c)

	case wire.TypeParticipants:
		list, err := wire.ParseParticipants(frame.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		c.handler.OnParticipants(c, list)

	case wire.TypeEditor:
		cmd, err := wire.ParseEditorCommand(frame.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		c.handler.OnEditorCommand(c, cmd)

	default:
		return fmt.Errorf("%w: unexpected %s frame", ErrProtocolViolation, frame.Type)
	}
	return nil
}

func (c *Conn) isBanned(bareIdentity string) bool {
	for _, banned := range c.cfg.Prefs.BannedUsers() {
		if banned == bareIdentity {
			return true
		}
	}
	return false
}

func (c *Conn) startKeepAlive() {
	c.keepAlive = NewKeepAlive(
		c.cfg.PingInterval,
		c.cfg.PongTimeout,
		func() error {
			err := c.writeFrame(wire.TypePing, wire.PingPayload)
			if err == nil {
				c.logControl(log.ControlMsgPing, log.DirectionOut)
			}
			return err
		},
		func() {
			c.logError(ErrPongTimeout)
			c.handler.OnError(c, ErrPongTimeout)
			c.Abort()
		},
	)
	c.keepAlive.Start()
}

func (c *Conn) setState(s State) {
	old := c.State()
	c.state.Store(int32(s))
	c.logStateChange(old.String(), s.String())
}

// silent reports whether err must not surface as an error event:
// rejection/decline already produced their own notices, and a clean
// shutdown (local abort or peer close) is not an error.
func (c *Conn) silent(err error) bool {
	if errors.Is(err, errRejected) || errors.Is(err, errDeclined) {
		return true
	}
	if remoteClosedNormally(err) {
		return true
	}
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// stallReader wraps the socket and applies the transfer deadline only
// while a frame is in flight. Each armed read refreshes the deadline,
// so the timeout is per wait, not per frame.
type stallReader struct {
	conn    net.Conn
	timeout time.Duration
	armed   atomic.Bool
}

func (r *stallReader) arm()    { r.armed.Store(true) }
func (r *stallReader) disarm() { r.armed.Store(false) }

func (r *stallReader) Read(p []byte) (int, error) {
	if r.armed.Load() {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	} else {
		r.conn.SetReadDeadline(time.Time{})
	}
	return r.conn.Read(p)
}
