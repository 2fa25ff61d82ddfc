package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coop-protocol/coop-go/pkg/log"
)

// Server errors.
var (
	// ErrAlreadyListening indicates a second Start on a running server.
	ErrAlreadyListening = errors.New("server already listening")

	// ErrNoFreePort indicates port search exhausted its attempts.
	ErrNoFreePort = errors.New("no free port found")
)

// ServerConfig configures a per-address listener.
type ServerConfig struct {
	// Host is the single local address to bind. Link-local IPv6
	// addresses must carry their zone ("fe80::1%eth0").
	Host string

	// FindFreePort allows probing successive ports when the requested
	// one is taken.
	FindFreePort bool

	// MaxPortsToTry bounds the port search (default 10).
	MaxPortsToTry int

	// OnConnection receives each accepted socket. The callback owns
	// the socket from then on.
	OnConnection func(conn net.Conn)

	// Logger captures listener state events (optional).
	Logger log.Logger
}

// Server listens on exactly one local address and hands accepted
// sockets to its owner. A multi-homed host runs one Server per
// address.
type Server struct {
	cfg      ServerConfig
	listener net.Listener
	port     uint16

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a server for the given address.
func NewServer(cfg ServerConfig) *Server {
	if cfg.MaxPortsToTry <= 0 {
		cfg.MaxPortsToTry = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	return &Server{cfg: cfg}
}

// Start binds the listener and begins accepting. It returns the port
// actually bound, which differs from the requested one only when
// FindFreePort is set. Port 0 requests an ephemeral port.
func (s *Server) Start(port uint16) (uint16, error) {
	if s.running.Load() {
		return 0, ErrAlreadyListening
	}

	listener, bound, err := s.bind(port)
	if err != nil {
		return 0, err
	}

	s.listener = listener
	s.port = bound
	s.running.Store(true)

	s.cfg.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			NewState: "LISTENING",
			Reason:   listener.Addr().String(),
		},
	})

	s.wg.Add(1)
	go s.acceptLoop()

	return bound, nil
}

// bind attempts to listen, probing successive ports when allowed. The
// last bind failure is always preserved for diagnostics.
func (s *Server) bind(port uint16) (net.Listener, uint16, error) {
	attempts := 1
	if s.cfg.FindFreePort && port != 0 {
		attempts = s.cfg.MaxPortsToTry
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		tryPort := port
		if port != 0 {
			tryPort = port + uint16(i)
		}

		listener, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(int(tryPort))))
		if err != nil {
			lastErr = err
			continue
		}

		bound := tryPort
		if bound == 0 {
			tcpAddr := listener.Addr().(*net.TCPAddr)
			bound = uint16(tcpAddr.Port)
		}
		return listener, bound, nil
	}

	return nil, 0, fmt.Errorf("%w on %s after %d attempts: %v", ErrNoFreePort, s.cfg.Host, attempts, lastErr)
}

// Stop closes the listener and waits for the accept loop to exit.
// Connections already handed out are not touched.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.listener.Close()
	s.wg.Wait()
}

// IsListening reports whether the server is accepting connections.
func (s *Server) IsListening() bool {
	return s.running.Load()
}

// Port returns the bound port, valid after a successful Start.
func (s *Server) Port() uint16 {
	return s.port
}

// Host returns the configured local address.
func (s *Server) Host() string {
	return s.cfg.Host
}

// Addr returns the listener's address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient accept failure; the listener itself is fine.
			continue
		}
		s.cfg.OnConnection(conn)
	}
}
