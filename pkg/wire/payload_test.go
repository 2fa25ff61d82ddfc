package wire

import (
	"errors"
	"testing"
)

func TestGreetingRoundTrip(t *testing.T) {
	g := Greeting{Username: "alice", Port: 6001}

	payload := EncodeGreeting(g)
	if string(payload) != "alice:6001" {
		t.Fatalf("payload = %q, want %q", payload, "alice:6001")
	}

	got, err := ParseGreeting(payload)
	if err != nil {
		t.Fatalf("ParseGreeting failed: %v", err)
	}
	if got != g {
		t.Errorf("got %+v, want %+v", got, g)
	}
}

func TestParseGreetingMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no colon", "alice"},
		{"too many colons", "alice:bob:6001"},
		{"empty user", ":6001"},
		{"non-numeric port", "alice:sixty"},
		{"port out of range", "alice:70000"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGreeting([]byte(tt.payload)); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("err = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

// Participant entries historically used "host:port" on the sending side
// but were split on "@" when consumed. The codec settles on "host@port"
// for both directions; these tests pin that choice down.
func TestParticipantsRoundTrip(t *testing.T) {
	list := []Participant{
		{Host: "10.0.0.5", Port: 6000},
		{Host: "fe80::1%eth0", Port: 6001},
		{Host: "workstation.local", Port: 42000},
	}

	payload := EncodeParticipants(list)
	want := "10.0.0.5@6000|||fe80::1%eth0@6001|||workstation.local@42000"
	if string(payload) != want {
		t.Fatalf("payload = %q, want %q", payload, want)
	}

	got, err := ParseParticipants(payload)
	if err != nil {
		t.Fatalf("ParseParticipants failed: %v", err)
	}
	if len(got) != len(list) {
		t.Fatalf("got %d entries, want %d", len(got), len(list))
	}
	for i := range list {
		if got[i] != list[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], list[i])
		}
	}
}

func TestParticipantsEmptyList(t *testing.T) {
	payload := EncodeParticipants(nil)
	if string(payload) != EmptyListPayload {
		t.Fatalf("payload = %q, want %q", payload, EmptyListPayload)
	}

	got, err := ParseParticipants(payload)
	if err != nil {
		t.Fatalf("ParseParticipants failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0", len(got))
	}
}

func TestParseParticipantMalformed(t *testing.T) {
	tests := []string{"", "@6000", "host", "host@", "host@notaport", "host@99999"}

	for _, entry := range tests {
		if _, err := ParseParticipant(entry); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("ParseParticipant(%q): err = %v, want ErrMalformedPayload", entry, err)
		}
	}
}

func TestParseParticipantIPv6(t *testing.T) {
	// The last "@" is structural; colons belong to the address.
	p, err := ParseParticipant("2001:db8::7@6000")
	if err != nil {
		t.Fatalf("ParseParticipant failed: %v", err)
	}
	if p.Host != "2001:db8::7" || p.Port != 6000 {
		t.Errorf("got %+v", p)
	}
}

func TestEditorCommandRoundTrip(t *testing.T) {
	cmd := EditorCommand{
		ProjectHash: "9f86d081884c7d65",
		FileName:    "src/widgets/editor.py",
		Command:     "E,12,4,insert",
	}

	got, err := ParseEditorCommand(EncodeEditorCommand(cmd))
	if err != nil {
		t.Fatalf("ParseEditorCommand failed: %v", err)
	}
	if got != cmd {
		t.Errorf("got %+v, want %+v", got, cmd)
	}
}

func TestEditorCommandSeparatorInCommandText(t *testing.T) {
	// Only the first two separators are structural; the command text
	// keeps any it contains.
	cmd := EditorCommand{
		ProjectHash: "hash",
		FileName:    "file.py",
		Command:     "a|||b|||c",
	}

	got, err := ParseEditorCommand(EncodeEditorCommand(cmd))
	if err != nil {
		t.Fatalf("ParseEditorCommand failed: %v", err)
	}
	if got.Command != "a|||b|||c" {
		t.Errorf("command = %q, want %q", got.Command, "a|||b|||c")
	}
}

func TestParseEditorCommandMalformed(t *testing.T) {
	for _, payload := range []string{"", "hash", "hash|||file"} {
		if _, err := ParseEditorCommand([]byte(payload)); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("ParseEditorCommand(%q): err = %v, want ErrMalformedPayload", payload, err)
		}
	}
}
