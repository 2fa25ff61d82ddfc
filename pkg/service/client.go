package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coop-protocol/coop-go/pkg/config"
	"github.com/coop-protocol/coop-go/pkg/log"
	"github.com/coop-protocol/coop-go/pkg/transport"
	"github.com/coop-protocol/coop-go/pkg/wire"
)

// DefaultDialTimeout bounds outbound connection attempts.
const DefaultDialTimeout = 30 * time.Second

// ClientConfig configures a Client. All callback fields are optional;
// a nil callback drops the event.
type ClientConfig struct {
	// Username is the local user's announced name. Defaults to
	// LocalUsername().
	Username string

	// Prefs supplies the ban list and accept policy. Defaults to an
	// in-memory store with confirmation required and port search on.
	Prefs config.Preferences

	// Acceptor confirms unsolicited inbound peers when auto-accept is
	// off.
	Acceptor transport.Acceptor

	// Resolver resolves peer hostnames. Defaults to reverse DNS.
	Resolver transport.Resolver

	// Logger captures protocol events (optional).
	Logger log.Logger

	// ListenAddresses overrides local interface enumeration.
	ListenAddresses []string

	// OnParticipantJoined fires when a peer completed the handshake.
	OnParticipantJoined func(nick string)

	// OnParticipantLeft fires when a peer with a known identity went
	// away.
	OnParticipantLeft func(nick string)

	// OnMessage fires for every received chat message.
	OnMessage func(sender, text string)

	// OnEditorCommand fires for every received editor command.
	OnEditorCommand func(sender string, cmd wire.EditorCommand)

	// OnConnectionError fires with a formatted description of any
	// connection failure.
	OnConnectionError func(msg string)

	// OnCannotConnect fires when the user-requested connection to a
	// session could not be established.
	OnCannotConnect func()

	// OnRejected fires when a handshake was turned away, with the
	// reason the peer side was given.
	OnRejected func(reason string)

	// DialTimeout bounds outbound connects. Defaults to
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// Timing overrides for tests; zero values select the protocol
	// constants.
	PingInterval    time.Duration
	PongTimeout     time.Duration
	TransferTimeout time.Duration
}

// Client is a chat session endpoint: it listens on the local interfaces,
// dials peers, and keeps the registry of live connections keyed by peer
// address.
type Client struct {
	cfg      ClientConfig
	username string

	mu        sync.Mutex
	servers   []*transport.Server
	listening bool
	port      uint16
	peers     map[string][]*transport.Conn

	// noLeft marks connections whose teardown must not announce a
	// departed participant: duplicates discarded at admission, and
	// connections whose departure was already announced.
	noLeft map[*transport.Conn]bool
}

// NewClient creates a client. Nothing is listening or connected yet.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Username == "" {
		cfg.Username = LocalUsername()
	}
	if cfg.Prefs == nil {
		cfg.Prefs = config.NewMemoryStore(false, true)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Client{
		cfg:      cfg,
		username: cfg.Username,
		peers:    make(map[string][]*transport.Conn),
		noLeft:   make(map[*transport.Conn]bool),
	}
}

// Username returns the local user's announced name.
func (c *Client) Username() string {
	return c.username
}

// Port returns the bound listen port, or 0 when not listening.
func (c *Client) Port() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// IsListening reports whether any listen server is running.
func (c *Client) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Nickname returns the local identity in the same form peer identities
// take: "user@host@port".
func (c *Client) Nickname() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return c.username + "@" + host + "@" + strconv.Itoa(int(c.Port()))
}

// StartListening starts one server per local address. The first address
// to bind fixes the port, searching upward from port when the
// preferences allow it; the remaining addresses must take that same
// port and failures there are reported but tolerated. The bound port is
// returned.
func (c *Client) StartListening(port uint16) (uint16, error) {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return 0, transport.ErrAlreadyListening
	}
	c.mu.Unlock()

	addresses := c.cfg.ListenAddresses
	if len(addresses) == 0 {
		addresses = ListenAddresses()
	}

	var (
		servers   []*transport.Server
		boundPort = port
		bound     bool
		lastErr   error
	)
	for _, addr := range addresses {
		srv := transport.NewServer(transport.ServerConfig{
			Host:          addr,
			FindFreePort:  !bound && c.cfg.Prefs.TryOtherPorts(),
			MaxPortsToTry: c.cfg.Prefs.MaxPortsToTry(),
			OnConnection:  c.handleInbound,
			Logger:        c.cfg.Logger,
		})
		p, err := srv.Start(boundPort)
		if err != nil {
			lastErr = err
			c.errorf("unable to listen on %s port %d: %v", addr, boundPort, err)
			continue
		}
		if !bound {
			boundPort = p
			bound = true
			c.mu.Lock()
			c.port = boundPort
			c.mu.Unlock()
		}
		servers = append(servers, srv)
	}
	if !bound {
		return 0, fmt.Errorf("no listen address could be bound: %w", lastErr)
	}

	c.mu.Lock()
	c.servers = servers
	c.listening = true
	c.mu.Unlock()
	return boundPort, nil
}

// ConnectToHost joins the chat session reachable at host:port. The
// resulting connection bootstraps the full peer set by requesting the
// participant list once ready.
func (c *Client) ConnectToHost(host string, port uint16) error {
	if err := c.dial(host, port, true); err != nil {
		if c.cfg.OnCannotConnect != nil {
			c.cfg.OnCannotConnect()
		}
		return err
	}
	return nil
}

// connectToPeer dials an additional session member learned from a
// participant list.
func (c *Client) connectToPeer(host string, port uint16) {
	if err := c.dial(host, port, false); err != nil {
		return
	}
}

func (c *Client) dial(host string, port uint16, initial bool) error {
	if port == 0 {
		err := fmt.Errorf("invalid port 0 for host %s", host)
		c.errorf("%v", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(int(port)))
	_, err := transport.Dial(ctx, address, c.connConfig(), &connHandler{client: c, initial: initial})
	if err != nil {
		c.errorf("cannot connect to %s: %v", address, err)
		return err
	}
	return nil
}

// SendMessage sends a chat message to every connected peer. Individual
// send failures are reported, not returned.
func (c *Client) SendMessage(text string) {
	for _, cn := range c.connections() {
		if err := cn.SendMessage(text); err != nil {
			c.errorf("sending message to %s: %v", c.describe(cn), err)
		}
	}
}

// SendEditorCommand sends an editor command to every connected peer.
func (c *Client) SendEditorCommand(cmd wire.EditorCommand) {
	for _, cn := range c.connections() {
		if err := cn.SendEditorCommand(cmd); err != nil {
			c.errorf("sending editor command to %s: %v", c.describe(cn), err)
		}
	}
}

// Participants returns the identities of all connected peers.
func (c *Client) Participants() []string {
	var nicks []string
	for _, cn := range c.connections() {
		nicks = append(nicks, cn.Username())
	}
	return nicks
}

// BanUser adds the user behind nick to the persistent ban list. The
// list stores "user@host"; the connection port in nick is dropped.
func (c *Client) BanUser(nick string) {
	c.cfg.Prefs.AddBannedUser(banKey(nick))
}

// KickUser drops every connection whose identity shares nick's host.
func (c *Client) KickUser(nick string) {
	host := nickHost(nick)
	if host == "" {
		return
	}
	for _, cn := range c.connections() {
		if nickHost(cn.Username()) == host {
			c.removeConnection(cn)
		}
	}
}

// BanKickUser bans the user behind nick and drops their connections.
func (c *Client) BanKickUser(nick string) {
	c.BanUser(nick)
	c.KickUser(nick)
}

// DisconnectConnections drops every peer connection, announcing each
// departure.
func (c *Client) DisconnectConnections() {
	for {
		c.mu.Lock()
		var conn *transport.Conn
		for _, bucket := range c.peers {
			if len(bucket) > 0 {
				conn = bucket[0]
				break
			}
		}
		c.mu.Unlock()
		if conn == nil {
			return
		}
		c.removeConnection(conn)
	}
}

// Close drops all connections and stops the listen servers.
func (c *Client) Close() {
	c.DisconnectConnections()

	c.mu.Lock()
	servers := c.servers
	c.servers = nil
	c.listening = false
	c.port = 0
	c.mu.Unlock()

	for _, srv := range servers {
		srv.Stop()
	}
}

func (c *Client) handleInbound(nc net.Conn) {
	transport.Accept(nc, c.connConfig(), &connHandler{client: c})
}

func (c *Client) connConfig() transport.ConnConfig {
	return transport.ConnConfig{
		Greeting:        wire.Greeting{Username: c.username, Port: c.Port()},
		Prefs:           c.cfg.Prefs,
		Acceptor:        c.cfg.Acceptor,
		Resolver:        c.cfg.Resolver,
		Logger:          c.cfg.Logger,
		PingInterval:    c.cfg.PingInterval,
		PongTimeout:     c.cfg.PongTimeout,
		TransferTimeout: c.cfg.TransferTimeout,
	}
}

// onReady admits a handshake-complete connection into the registry.
// A second connection to a peer already registered under the same
// address and server port is discarded silently.
func (c *Client) onReady(conn *transport.Conn, initial bool) {
	host := conn.PeerHost()

	c.mu.Lock()
	for _, cn := range c.peers[host] {
		if cn.ServerPort() == conn.ServerPort() {
			c.noLeft[conn] = true
			c.mu.Unlock()
			conn.Abort()
			return
		}
	}
	c.peers[host] = append(c.peers[host], conn)
	c.mu.Unlock()

	if c.cfg.OnParticipantJoined != nil {
		c.cfg.OnParticipantJoined(conn.Username())
	}

	if initial {
		if err := conn.SendGetParticipants(); err != nil {
			c.errorf("requesting participants from %s: %v", c.describe(conn), err)
		}
	}
}

// onGetParticipants answers with every registered peer except the
// requester itself.
func (c *Client) onGetParticipants(conn *transport.Conn) {
	c.mu.Lock()
	var list []wire.Participant
	for _, bucket := range c.peers {
		for _, cn := range bucket {
			if cn == conn {
				continue
			}
			list = append(list, wire.Participant{Host: cn.PeerHost(), Port: cn.ServerPort()})
		}
	}
	c.mu.Unlock()

	if err := conn.SendParticipants(list); err != nil {
		c.errorf("sending participants to %s: %v", c.describe(conn), err)
	}
}

// onParticipants dials every listed session member not yet connected.
func (c *Client) onParticipants(list []wire.Participant) {
	for _, p := range list {
		if p.Port == 0 {
			c.errorf("invalid port 0 for host %s in participants list", p.Host)
			continue
		}
		if c.isConnectedTo(p.Host, p.Port) {
			continue
		}
		c.connectToPeer(p.Host, p.Port)
	}
}

func (c *Client) isConnectedTo(host string, port uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cn := range c.peers[host] {
		if cn.ServerPort() == port {
			return true
		}
	}
	return false
}

// removeConnection takes conn out of the registry and aborts it. The
// departure is announced once, using the last known identity, provided
// the connection ever had one.
func (c *Client) removeConnection(conn *transport.Conn) {
	host := conn.PeerHost()

	c.mu.Lock()
	bucket := c.peers[host]
	for i, cn := range bucket {
		if cn == conn {
			c.peers[host] = append(bucket[:i], bucket[i+1:]...)
			if len(c.peers[host]) == 0 {
				delete(c.peers, host)
			}
			break
		}
	}
	announced := c.noLeft[conn]
	c.noLeft[conn] = true
	c.mu.Unlock()

	if nick := conn.Username(); nick != "" && !announced && c.cfg.OnParticipantLeft != nil {
		c.cfg.OnParticipantLeft(nick)
	}
	conn.Abort()
}

// forget drops the bookkeeping for a fully torn down connection.
func (c *Client) forget(conn *transport.Conn) {
	c.mu.Lock()
	delete(c.noLeft, conn)
	c.mu.Unlock()
}

func (c *Client) connections() []*transport.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	var conns []*transport.Conn
	for _, bucket := range c.peers {
		conns = append(conns, bucket...)
	}
	return conns
}

func (c *Client) describe(conn *transport.Conn) string {
	if nick := conn.Username(); nick != "" {
		return nick
	}
	return conn.RemoteAddr().String()
}

func (c *Client) errorf(format string, args ...any) {
	if c.cfg.OnConnectionError != nil {
		c.cfg.OnConnectionError(fmt.Sprintf(format, args...))
	}
}

// banKey reduces a "user@host@port" identity to the "user@host" form
// the ban list stores.
func banKey(nick string) string {
	parts := strings.SplitN(nick, "@", 3)
	if len(parts) >= 2 {
		return parts[0] + "@" + parts[1]
	}
	return parts[0]
}

// nickHost extracts the host portion of a "user@host@port" identity.
func nickHost(nick string) string {
	parts := strings.SplitN(nick, "@", 3)
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// connHandler routes one connection's events into the client,
// remembering whether this was the user-requested session connection.
type connHandler struct {
	client  *Client
	initial bool
}

func (h *connHandler) OnReady(conn *transport.Conn) {
	h.client.onReady(conn, h.initial)
}

func (h *connHandler) OnMessage(conn *transport.Conn, text string) {
	if h.client.cfg.OnMessage != nil {
		h.client.cfg.OnMessage(conn.Username(), text)
	}
}

func (h *connHandler) OnGetParticipants(conn *transport.Conn) {
	h.client.onGetParticipants(conn)
}

func (h *connHandler) OnParticipants(conn *transport.Conn, list []wire.Participant) {
	h.client.onParticipants(list)
}

func (h *connHandler) OnEditorCommand(conn *transport.Conn, cmd wire.EditorCommand) {
	if h.client.cfg.OnEditorCommand != nil {
		h.client.cfg.OnEditorCommand(conn.Username(), cmd)
	}
}

func (h *connHandler) OnRejected(conn *transport.Conn, reason string) {
	if h.client.cfg.OnRejected != nil {
		h.client.cfg.OnRejected(reason)
	}
}

func (h *connHandler) OnError(conn *transport.Conn, err error) {
	h.client.errorf("%s: %v", h.client.describe(conn), err)
}

func (h *connHandler) OnRefused(conn *transport.Conn) {
	if h.initial && h.client.cfg.OnCannotConnect != nil {
		h.client.cfg.OnCannotConnect()
	}
	h.client.forget(conn)
}

func (h *connHandler) OnDisconnected(conn *transport.Conn) {
	h.client.removeConnection(conn)
	h.client.forget(conn)
}

var _ transport.Handler = (*connHandler)(nil)
