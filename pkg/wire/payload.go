package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Greeting is the handshake payload: the peer's chosen name and the
// port its own listener accepts connections on.
type Greeting struct {
	Username string
	Port     uint16
}

// EncodeGreeting renders a greeting payload as "user:port".
func EncodeGreeting(g Greeting) []byte {
	return []byte(g.Username + ":" + strconv.Itoa(int(g.Port)))
}

// ParseGreeting parses a "user:port" greeting payload. The username
// must not contain a colon and must be non-empty.
func ParseGreeting(payload []byte) (Greeting, error) {
	parts := strings.Split(string(payload), ":")
	if len(parts) != 2 || parts[0] == "" {
		return Greeting{}, fmt.Errorf("%w: greeting %q", ErrMalformedPayload, payload)
	}
	port, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Greeting{}, fmt.Errorf("%w: greeting port %q", ErrMalformedPayload, parts[1])
	}
	return Greeting{Username: parts[0], Port: uint16(port)}, nil
}

// Participant is one entry of a PARTICIPANTS payload: the address and
// listen port a peer can be reached at.
type Participant struct {
	Host string
	Port uint16
}

// String renders the canonical wire form "host@port".
//
// The host side of the pair may be an IPv6 address, so the joining
// character must not be a colon. Both the producer and the consumer
// use this one form.
func (p Participant) String() string {
	return p.Host + "@" + strconv.Itoa(int(p.Port))
}

// ParseParticipant parses a single "host@port" entry.
func ParseParticipant(entry string) (Participant, error) {
	at := strings.LastIndex(entry, "@")
	if at <= 0 {
		return Participant{}, fmt.Errorf("%w: participant %q", ErrMalformedPayload, entry)
	}
	port, err := strconv.ParseUint(entry[at+1:], 10, 16)
	if err != nil {
		return Participant{}, fmt.Errorf("%w: participant port %q", ErrMalformedPayload, entry[at+1:])
	}
	return Participant{Host: entry[:at], Port: uint16(port)}, nil
}

// EncodeParticipants renders a PARTICIPANTS payload. An empty list
// becomes the literal EmptyListPayload.
func EncodeParticipants(list []Participant) []byte {
	if len(list) == 0 {
		return []byte(EmptyListPayload)
	}
	entries := make([]string, len(list))
	for i, p := range list {
		entries[i] = p.String()
	}
	return []byte(strings.Join(entries, Separator))
}

// ParseParticipants parses a PARTICIPANTS payload. The EmptyListPayload
// literal yields an empty list, not an error.
func ParseParticipants(payload []byte) ([]Participant, error) {
	s := string(payload)
	if s == EmptyListPayload {
		return nil, nil
	}
	entries := strings.Split(s, Separator)
	list := make([]Participant, 0, len(entries))
	for _, entry := range entries {
		p, err := ParseParticipant(entry)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, nil
}

// EditorCommand is an EDITOR payload: a command to apply to a shared
// file, scoped by project hash and project-relative file name.
type EditorCommand struct {
	ProjectHash string
	FileName    string
	Command     string
}

// EncodeEditorCommand renders the three separator-joined EDITOR fields.
func EncodeEditorCommand(c EditorCommand) []byte {
	return []byte(c.ProjectHash + Separator + c.FileName + Separator + c.Command)
}

// ParseEditorCommand splits an EDITOR payload into its three fields.
// The command text may itself contain the separator; only the first
// two splits are structural.
func ParseEditorCommand(payload []byte) (EditorCommand, error) {
	parts := strings.SplitN(string(payload), Separator, 3)
	if len(parts) != 3 {
		return EditorCommand{}, fmt.Errorf("%w: editor command with %d fields", ErrMalformedPayload, len(parts))
	}
	return EditorCommand{
		ProjectHash: parts[0],
		FileName:    parts[1],
		Command:     parts[2],
	}, nil
}

// PingPayload is the single ignored byte carried by PING and PONG.
var PingPayload = []byte{'1'}
