package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAttemptsSpent is reported through OnGiveUp when a rejoin burst
// runs out of attempts.
var ErrAttemptsSpent = errors.New("rejoin attempts exhausted")

// DefaultAttemptTimeout bounds a single join attempt.
const DefaultAttemptTimeout = 30 * time.Second

// State is the rejoiner's session view.
type State uint8

const (
	// StateIdle means no session is established and none is wanted.
	StateIdle State = iota

	// StateJoined means the session entry connection is up.
	StateJoined

	// StateRejoining means the session was lost and attempts are
	// running.
	StateRejoining

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateJoined:
		return "JOINED"
	case StateRejoining:
		return "REJOINING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// JoinFunc establishes the session entry connection. It returns nil
// once the connection is up; completion of the handshake is reported
// separately via Joined.
type JoinFunc func(ctx context.Context) error

// RejoinerConfig configures a Rejoiner.
type RejoinerConfig struct {
	// Join dials the session. Required.
	Join JoinFunc

	// Backoff customizes the retry schedule.
	Backoff BackoffConfig

	// AttemptTimeout bounds one join attempt. Defaults to
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// MaxAttempts limits one rejoin burst; 0 means unlimited.
	MaxAttempts int

	// OnStateChange fires on every state transition.
	OnStateChange func(old, new State)

	// OnRejoining fires before each attempt, with the wait preceding
	// it.
	OnRejoining func(attempt int, delay time.Duration)

	// OnGiveUp fires when MaxAttempts is spent without success.
	OnGiveUp func(err error)
}

// Rejoiner re-establishes the session entry connection after a loss.
type Rejoiner struct {
	cfg     RejoinerConfig
	backoff *Backoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wakeCh chan struct{}

	mu    sync.Mutex
	state State
}

// NewRejoiner creates a rejoiner and starts its retry loop. The loop
// sleeps until a session loss is reported.
func NewRejoiner(cfg RejoinerConfig) *Rejoiner {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Rejoiner{
		cfg:     cfg,
		backoff: NewBackoff(cfg.Backoff),
		ctx:     ctx,
		cancel:  cancel,
		wakeCh:  make(chan struct{}, 1),
	}

	r.wg.Add(1)
	go r.loop()
	return r
}

// State returns the current session view.
func (r *Rejoiner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Joined reports a successfully established session. It resets the
// backoff schedule.
func (r *Rejoiner) Joined() {
	r.setState(StateJoined)
	r.backoff.Reset()
}

// SessionLost reports that the session entry connection went away and
// wakes the retry loop. Reports while already rejoining are ignored.
func (r *Rejoiner) SessionLost() {
	r.mu.Lock()
	if r.state == StateClosed || r.state == StateRejoining {
		r.mu.Unlock()
		return
	}
	old := r.state
	r.state = StateRejoining
	r.mu.Unlock()

	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(old, StateRejoining)
	}

	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Close stops the retry loop and waits for it to exit.
func (r *Rejoiner) Close() {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return
	}
	old := r.state
	r.state = StateClosed
	r.mu.Unlock()

	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(old, StateClosed)
	}

	r.cancel()
	r.wg.Wait()
}

// Attempts returns the attempts made in the current rejoin burst.
func (r *Rejoiner) Attempts() int {
	return r.backoff.Attempts()
}

func (r *Rejoiner) setState(s State) {
	r.mu.Lock()
	if r.state == StateClosed || r.state == s {
		r.mu.Unlock()
		return
	}
	old := r.state
	r.state = s
	r.mu.Unlock()

	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(old, s)
	}
}

func (r *Rejoiner) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.wakeCh:
			r.rejoin()
		}
	}
}

// rejoin attempts to join until success, closure, or the attempt
// budget is spent.
func (r *Rejoiner) rejoin() {
	for r.State() == StateRejoining {
		if r.cfg.MaxAttempts > 0 && r.backoff.Attempts() >= r.cfg.MaxAttempts {
			r.setState(StateIdle)
			r.backoff.Reset()
			if r.cfg.OnGiveUp != nil {
				r.cfg.OnGiveUp(fmt.Errorf("%w after %d attempts", ErrAttemptsSpent, r.cfg.MaxAttempts))
			}
			return
		}

		delay := r.backoff.Next()
		if r.cfg.OnRejoining != nil {
			r.cfg.OnRejoining(r.backoff.Attempts(), delay)
		}

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(delay):
		}

		if r.State() != StateRejoining {
			return
		}

		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.AttemptTimeout)
		err := r.cfg.Join(ctx)
		cancel()
		if err == nil {
			r.Joined()
			return
		}
	}
}
