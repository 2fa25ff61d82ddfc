package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coop-protocol/coop-go/pkg/config"
	"github.com/coop-protocol/coop-go/pkg/wire"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// addrResolver keeps peer identities keyed by raw address, which makes
// assertions deterministic on loopback.
type addrResolver struct{}

func (addrResolver) ReverseLookup(addr string) string { return addr }

type recvMsg struct {
	sender, text string
}

type recorder struct {
	mu            sync.Mutex
	joined        []string
	left          []string
	messages      []recvMsg
	commands      []wire.EditorCommand
	errors        []string
	rejected      []string
	cannotConnect int
}

func (r *recorder) onJoined(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, nick)
}

func (r *recorder) onLeft(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, nick)
}

func (r *recorder) onMessage(sender, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, recvMsg{sender, text})
}

func (r *recorder) onEditorCommand(sender string, cmd wire.EditorCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *recorder) onError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recorder) onRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func (r *recorder) onCannotConnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cannotConnect++
}

func (r *recorder) joinedList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.joined...)
}

func (r *recorder) leftList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.left...)
}

func (r *recorder) messageList() []recvMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recvMsg(nil), r.messages...)
}

func (r *recorder) commandList() []wire.EditorCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.EditorCommand(nil), r.commands...)
}

func (r *recorder) errorList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) rejectedList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rejected...)
}

func (r *recorder) cannotConnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cannotConnect
}

func newTestClient(t *testing.T, user string) (*Client, *recorder) {
	t.Helper()

	rec := &recorder{}
	c := NewClient(ClientConfig{
		Username:            user,
		Prefs:               config.NewMemoryStore(true, true),
		Resolver:            addrResolver{},
		ListenAddresses:     []string{"127.0.0.1"},
		OnParticipantJoined: rec.onJoined,
		OnParticipantLeft:   rec.onLeft,
		OnMessage:           rec.onMessage,
		OnEditorCommand:     rec.onEditorCommand,
		OnConnectionError:   rec.onError,
		OnCannotConnect:     rec.onCannotConnect,
		OnRejected:          rec.onRejected,
	})
	_, err := c.StartListening(0)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, rec
}

func waitPeers(t *testing.T, c *Client, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.Participants()) == n
	}, waitFor, tick, "expected %d peers, have %v", n, c.Participants())
}

func TestConnectAndJoin(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, rb := newTestClient(t, "bob")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))

	waitPeers(t, a, 1)
	waitPeers(t, b, 1)

	require.Len(t, ra.joinedList(), 1)
	assert.True(t, strings.HasPrefix(ra.joinedList()[0], "bob@127.0.0.1@"))
	require.Len(t, rb.joinedList(), 1)
	assert.True(t, strings.HasPrefix(rb.joinedList()[0], "alice@127.0.0.1@"))
}

func TestBootstrapConnectsToAllParticipants(t *testing.T) {
	a, _ := newTestClient(t, "alice")
	b, _ := newTestClient(t, "bob")
	c, _ := newTestClient(t, "carol")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)
	waitPeers(t, b, 1)

	// Joining via alice must pull in bob through the participant list.
	require.NoError(t, c.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 2)
	waitPeers(t, b, 2)
	waitPeers(t, c, 2)
}

func TestDuplicateConnectionDiscarded(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, rb := newTestClient(t, "bob")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)
	waitPeers(t, b, 1)

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	time.Sleep(300 * time.Millisecond)

	assert.Len(t, a.Participants(), 1)
	assert.Len(t, b.Participants(), 1)
	assert.Empty(t, ra.leftList())
	assert.Empty(t, rb.leftList())
	assert.Len(t, ra.joinedList(), 1)
	assert.Len(t, rb.joinedList(), 1)
}

func TestBannedUserRejected(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, rb := newTestClient(t, "bob")

	a.BanUser("bob@127.0.0.1@9999")
	assert.Equal(t, []string{"bob@127.0.0.1"}, a.cfg.Prefs.BannedUsers())

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))

	require.Eventually(t, func() bool {
		return len(ra.rejectedList()) == 1
	}, waitFor, tick)
	assert.Contains(t, ra.rejectedList()[0], "banned user")

	// The attempt never joins, but its departure is still announced
	// because the identity was known by then.
	require.Eventually(t, func() bool {
		return len(ra.leftList()) == 1
	}, waitFor, tick)
	assert.True(t, strings.HasPrefix(ra.leftList()[0], "bob@127.0.0.1@"))
	assert.Empty(t, ra.joinedList())
	assert.Empty(t, a.Participants())

	// The rejected side sees its session attempt fail.
	require.Eventually(t, func() bool {
		return rb.cannotConnectCount() == 1
	}, waitFor, tick)
	assert.Empty(t, b.Participants())
}

func TestKickUser(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, rb := newTestClient(t, "bob")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)
	waitPeers(t, b, 1)

	nick := ra.joinedList()[0]
	a.KickUser(nick)

	waitPeers(t, a, 0)
	waitPeers(t, b, 0)
	assert.Equal(t, []string{nick}, ra.leftList())
	require.Eventually(t, func() bool {
		return len(rb.leftList()) == 1
	}, waitFor, tick)
}

func TestBanKickUser(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, _ := newTestClient(t, "bob")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)

	a.BanKickUser(ra.joinedList()[0])

	waitPeers(t, a, 0)
	assert.Equal(t, []string{"bob@127.0.0.1"}, a.cfg.Prefs.BannedUsers())

	// A reconnect attempt is now rejected outright.
	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	require.Eventually(t, func() bool {
		return len(ra.rejectedList()) == 1
	}, waitFor, tick)
	assert.Empty(t, a.Participants())
}

func TestMessageFanOut(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, rb := newTestClient(t, "bob")
	c, rc := newTestClient(t, "carol")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)
	require.NoError(t, c.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 2)
	waitPeers(t, b, 2)
	waitPeers(t, c, 2)

	a.SendMessage("hello everyone")

	for _, rec := range []*recorder{rb, rc} {
		require.Eventually(t, func() bool {
			return len(rec.messageList()) == 1
		}, waitFor, tick)
		msg := rec.messageList()[0]
		assert.Equal(t, "hello everyone", msg.text)
		assert.True(t, strings.HasPrefix(msg.sender, "alice@127.0.0.1@"))
	}
	assert.Empty(t, ra.messageList())
}

func TestEditorCommandFanOut(t *testing.T) {
	a, _ := newTestClient(t, "alice")
	b, rb := newTestClient(t, "bob")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)
	waitPeers(t, b, 1)

	cmd := wire.EditorCommand{
		ProjectHash: "f00dcafe",
		FileName:    "src/widget.py",
		Command:     "insert" + wire.Separator + "10,0,def f():\n",
	}
	a.SendEditorCommand(cmd)

	require.Eventually(t, func() bool {
		return len(rb.commandList()) == 1
	}, waitFor, tick)
	assert.Equal(t, cmd, rb.commandList()[0])
}

func TestParticipantsWithInvalidPortReported(t *testing.T) {
	a, ra := newTestClient(t, "alice")

	a.onParticipants([]wire.Participant{{Host: "10.1.2.3", Port: 0}})

	require.Len(t, ra.errorList(), 1)
	assert.Contains(t, ra.errorList()[0], "invalid port 0 for host 10.1.2.3")
	assert.Empty(t, a.Participants())
}

func TestDisconnectConnections(t *testing.T) {
	a, ra := newTestClient(t, "alice")
	b, _ := newTestClient(t, "bob")
	c, _ := newTestClient(t, "carol")

	require.NoError(t, b.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 1)
	require.NoError(t, c.ConnectToHost("127.0.0.1", a.Port()))
	waitPeers(t, a, 2)

	a.DisconnectConnections()

	assert.Empty(t, a.Participants())
	assert.Len(t, ra.leftList(), 2)
	waitPeers(t, b, 1)
	waitPeers(t, c, 1)
}

func TestStartListeningTwice(t *testing.T) {
	a, _ := newTestClient(t, "alice")

	_, err := a.StartListening(0)
	assert.Error(t, err)
}

func TestCannotConnect(t *testing.T) {
	a, ra := newTestClient(t, "alice")

	// Nothing listens on the peer port of a closed ephemeral socket.
	err := a.ConnectToHost("127.0.0.1", 1)
	require.Error(t, err)
	assert.Equal(t, 1, ra.cannotConnectCount())
	require.Len(t, ra.errorList(), 1)
	assert.Contains(t, ra.errorList()[0], "cannot connect to 127.0.0.1:1")
}

func TestNicknameFormat(t *testing.T) {
	a, _ := newTestClient(t, "alice")

	parts := strings.Split(a.Nickname(), "@")
	require.Len(t, parts, 3)
	assert.Equal(t, "alice", parts[0])
	assert.NotEmpty(t, parts[1])
	assert.NotEqual(t, "0", parts[2])
}
