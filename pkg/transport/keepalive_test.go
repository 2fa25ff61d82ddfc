package transport

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveSendsPings(t *testing.T) {
	var pingCount atomic.Int32

	ka := NewKeepAlive(20*time.Millisecond, time.Second,
		func() error {
			pingCount.Add(1)
			return nil
		},
		func() {
			t.Error("timeout must not fire while pongs arrive")
		},
	)

	ka.Start()
	defer ka.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for pingCount.Load() < 3 && time.Now().Before(deadline) {
		ka.PongReceived()
		time.Sleep(10 * time.Millisecond)
	}

	if pingCount.Load() < 3 {
		t.Errorf("got %d pings, want at least 3", pingCount.Load())
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	var pingsAfterTimeout atomic.Int32
	var timedOutFlag atomic.Bool

	ka := NewKeepAlive(20*time.Millisecond, 60*time.Millisecond,
		func() error {
			if timedOutFlag.Load() {
				pingsAfterTimeout.Add(1)
			}
			return nil
		},
		func() {
			timedOutFlag.Store(true)
			close(timedOut)
		},
	)

	ka.Start()
	defer ka.Stop()

	// Never answer: the timeout must fire on a tick after 60ms quiet.
	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	// The dead peer gets no further pings.
	time.Sleep(100 * time.Millisecond)
	if n := pingsAfterTimeout.Load(); n != 0 {
		t.Errorf("%d pings sent after timeout", n)
	}
	if ka.IsRunning() {
		t.Error("keep-alive still running after timeout")
	}
}

func TestKeepAlivePongResetsClock(t *testing.T) {
	var timeoutFired atomic.Bool

	ka := NewKeepAlive(20*time.Millisecond, 80*time.Millisecond,
		func() error { return nil },
		func() { timeoutFired.Store(true) },
	)

	ka.Start()
	defer ka.Stop()

	// Keep answering for longer than the pong timeout; the connection
	// must stay alive the whole time.
	stop := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(stop) {
		ka.PongReceived()
		time.Sleep(10 * time.Millisecond)
	}

	if timeoutFired.Load() {
		t.Error("timeout fired despite steady pongs")
	}
}

func TestKeepAliveStopIdempotent(t *testing.T) {
	ka := NewKeepAlive(10*time.Millisecond, time.Second,
		func() error { return nil },
		func() {},
	)

	ka.Start()
	ka.Stop()
	ka.Stop()

	if ka.IsRunning() {
		t.Error("running after Stop")
	}
}

func TestKeepAliveStatsCountPings(t *testing.T) {
	ka := NewKeepAlive(15*time.Millisecond, time.Second,
		func() error { return nil },
		func() {},
	)

	ka.Start()
	time.Sleep(80 * time.Millisecond)
	ka.Stop()

	stats := ka.Stats()
	if stats.PingsSent == 0 {
		t.Error("no pings recorded")
	}
	if stats.LastPongTime.IsZero() {
		t.Error("liveness clock not initialized by Start")
	}
}
