package transport

import (
	"sync"
	"time"
)

// KeepAlive manages connection liveness monitoring.
//
// Every ping interval it checks how long ago the last pong arrived:
// beyond the pong timeout the connection is declared dead and the
// timeout callback runs instead of another ping being sent.
type KeepAlive struct {
	interval time.Duration
	timeout  time.Duration

	// Callbacks
	sendPing  func() error
	onTimeout func()

	mu       sync.Mutex
	lastPong time.Time
	pings    int
	running  bool
	stopCh   chan struct{}
}

// NewKeepAlive creates a keep-alive monitor. sendPing is called on
// every interval tick while the peer is alive; onTimeout is called at
// most once, when the peer is presumed dead.
func NewKeepAlive(interval, timeout time.Duration, sendPing func() error, onTimeout func()) *KeepAlive {
	if interval == 0 {
		interval = PingInterval
	}
	if timeout == 0 {
		timeout = PongTimeout
	}
	return &KeepAlive{
		interval:  interval,
		timeout:   timeout,
		sendPing:  sendPing,
		onTimeout: onTimeout,
	}
}

// Start begins monitoring. The liveness clock starts now: a peer that
// never answers a single ping is dropped one tick after the timeout.
func (ka *KeepAlive) Start() {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.lastPong = time.Now()
	ka.stopCh = make(chan struct{})
	ka.mu.Unlock()

	go ka.loop()
}

// Stop stops monitoring. Safe to call multiple times.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// PongReceived resets the liveness clock.
func (ka *KeepAlive) PongReceived() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.lastPong = time.Now()
}

// IsRunning returns true if monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPongTime: ka.lastPong,
		PingsSent:    ka.pings,
	}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPongTime time.Time
	PingsSent    int
}

// loop is the monitoring loop.
func (ka *KeepAlive) loop() {
	ticker := time.NewTicker(ka.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if !ka.handleTick() {
				return
			}
		}
	}
}

// handleTick sends a ping, or fires the timeout when the peer has been
// quiet too long. Returns false when monitoring should end.
func (ka *KeepAlive) handleTick() bool {
	ka.mu.Lock()
	quiet := time.Since(ka.lastPong)
	ka.mu.Unlock()

	if quiet > ka.timeout {
		ka.Stop()
		ka.onTimeout()
		return false
	}

	// A failed ping write means the socket is gone; the read loop
	// notices and tears the connection down, no action needed here.
	if err := ka.sendPing(); err == nil {
		ka.mu.Lock()
		ka.pings++
		ka.mu.Unlock()
	}
	return true
}
