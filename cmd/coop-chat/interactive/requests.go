package interactive

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AnswerTimeout is how long a join request waits for a user decision
// before it is declined.
const AnswerTimeout = 30 * time.Second

// JoinRequests queues inbound connection confirmations for the command
// loop. It implements transport.Acceptor: the connection's read
// goroutine blocks in AcceptConnection until the user answers with
// /accept or /deny, or the timeout declines for them.
type JoinRequests struct {
	mu      sync.Mutex
	out     io.Writer
	pending []chan bool
}

// NewJoinRequests creates an empty queue writing notices to stdout
// until SetOutput is called.
func NewJoinRequests() *JoinRequests {
	return &JoinRequests{out: os.Stdout}
}

// SetOutput redirects request notices, typically to the readline
// coordinated writer.
func (j *JoinRequests) SetOutput(w io.Writer) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.out = w
}

// AcceptConnection queues the request and waits for the user's answer.
func (j *JoinRequests) AcceptConnection(user, host string) bool {
	ch := make(chan bool, 1)

	j.mu.Lock()
	j.pending = append(j.pending, ch)
	out := j.out
	j.mu.Unlock()

	fmt.Fprintf(out, "\n*** %s@%s wants to join the session. Type /accept or /deny.\n", user, host)

	select {
	case accept := <-ch:
		return accept
	case <-time.After(AnswerTimeout):
		j.drop(ch)
		fmt.Fprintf(out, "\n*** Join request from %s@%s timed out and was declined.\n", user, host)
		return false
	}
}

// Answer resolves the oldest pending request. It reports whether a
// request was pending.
func (j *JoinRequests) Answer(accept bool) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.pending) == 0 {
		return false
	}
	ch := j.pending[0]
	j.pending = j.pending[1:]
	ch <- accept
	return true
}

// Pending returns the number of unanswered requests.
func (j *JoinRequests) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// drop removes a timed-out request from the queue.
func (j *JoinRequests) drop(ch chan bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, pending := range j.pending {
		if pending == ch {
			j.pending = append(j.pending[:i], j.pending[i+1:]...)
			return
		}
	}
}
