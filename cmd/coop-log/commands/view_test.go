package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/coop-protocol/coop-go/pkg/log"
)

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size: 28,
			Data: []byte("MESSAGE|||5|||hello"),
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "2026-03-14T10:15:32.123456Z") {
		t.Errorf("expected formatted timestamp, got: %s", output)
	}
	if !strings.Contains(output, "[conn:abc12345]") {
		t.Errorf("expected shortened connection ID, got: %s", output)
	}
	if !strings.Contains(output, "OUT") {
		t.Errorf("expected OUT direction, got: %s", output)
	}
	if !strings.Contains(output, "TRANSPORT") {
		t.Errorf("expected TRANSPORT layer, got: %s", output)
	}
	if !strings.Contains(output, "Frame") {
		t.Errorf("expected Frame label, got: %s", output)
	}
	if !strings.Contains(output, "28 bytes") {
		t.Errorf("expected frame size, got: %s", output)
	}
	if !strings.Contains(output, "MESSAGE|||5|||hello") {
		t.Errorf("expected frame data, got: %s", output)
	}
}

func TestFormatFrameEventEscapesControlBytes(t *testing.T) {
	event := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size: 3,
			Data: []byte("a\nb"),
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "a\\x0ab") {
		t.Errorf("expected escaped newline, got: %s", output)
	}
}

func TestFormatChatEvent(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 32, 0, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Username:     "alice@workstation@42000",
		Chat: &log.ChatEvent{
			MessageType: "MESSAGE",
			Size:        42,
			Sender:      "alice@workstation@42000",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "MESSAGE") {
		t.Errorf("expected MESSAGE type, got: %s", output)
	}
	if !strings.Contains(output, "42 bytes") {
		t.Errorf("expected payload size, got: %s", output)
	}
	if !strings.Contains(output, "alice@workstation@42000") {
		t.Errorf("expected peer identity, got: %s", output)
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 30, 0, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionIn,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: "waiting_for_greeting",
			NewState: "connected",
			Reason:   "greeting accepted",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "State") {
		t.Errorf("expected State label, got: %s", output)
	}
	if !strings.Contains(output, "CONNECTION") {
		t.Errorf("expected CONNECTION entity, got: %s", output)
	}
	if !strings.Contains(output, "waiting_for_greeting -> connected") {
		t.Errorf("expected transition, got: %s", output)
	}
	if !strings.Contains(output, "greeting accepted") {
		t.Errorf("expected reason, got: %s", output)
	}
}

func TestFormatControlMsgEvent(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 35, 0, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{
			Type: log.ControlMsgPing,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "CTRL") {
		t.Errorf("expected CTRL marker, got: %s", output)
	}
	if !strings.Contains(output, "PING") {
		t.Errorf("expected PING type, got: %s", output)
	}
}

func TestFormatErrorEvent(t *testing.T) {
	event := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Message: "frame exceeds size limit",
			Context: "read loop",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "frame exceeds size limit") {
		t.Errorf("expected error message, got: %s", output)
	}
	if !strings.Contains(output, "read loop") {
		t.Errorf("expected error context, got: %s", output)
	}
}

func TestFilterByLayer(t *testing.T) {
	events := []log.Event{
		{Layer: log.LayerTransport, Category: log.CategoryMessage},
		{Layer: log.LayerWire, Category: log.CategoryMessage},
		{Layer: log.LayerSession, Category: log.CategoryMessage},
	}

	wire := log.LayerWire
	filter := ViewFilter{Layer: &wire}

	filtered := filterEvents(events, filter)
	if len(filtered) != 1 {
		t.Errorf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].Layer != log.LayerWire {
		t.Errorf("expected wire layer, got %v", filtered[0].Layer)
	}
}

func TestFilterByDirection(t *testing.T) {
	events := []log.Event{
		{Direction: log.DirectionIn, Category: log.CategoryMessage},
		{Direction: log.DirectionOut, Category: log.CategoryMessage},
		{Direction: log.DirectionIn, Category: log.CategoryMessage},
	}

	out := log.DirectionOut
	filter := ViewFilter{Direction: &out}

	filtered := filterEvents(events, filter)
	if len(filtered) != 1 {
		t.Errorf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].Direction != log.DirectionOut {
		t.Errorf("expected out direction, got %v", filtered[0].Direction)
	}
}

func TestFilterByCategory(t *testing.T) {
	events := []log.Event{
		{Category: log.CategoryMessage},
		{Category: log.CategoryControl},
		{Category: log.CategoryState},
		{Category: log.CategoryError},
	}

	state := log.CategoryState
	filter := ViewFilter{Category: &state}

	filtered := filterEvents(events, filter)
	if len(filtered) != 1 {
		t.Errorf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].Category != log.CategoryState {
		t.Errorf("expected state category, got %v", filtered[0].Category)
	}
}

func TestParseLayer(t *testing.T) {
	tests := []struct {
		input    string
		expected log.Layer
		wantErr  bool
	}{
		{"transport", log.LayerTransport, false},
		{"TRANSPORT", log.LayerTransport, false},
		{"wire", log.LayerWire, false},
		{"session", log.LayerSession, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := parseLayer(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLayer(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseLayer(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseLayer(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		}
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input    string
		expected log.Direction
		wantErr  bool
	}{
		{"in", log.DirectionIn, false},
		{"IN", log.DirectionIn, false},
		{"out", log.DirectionOut, false},
		{"OUT", log.DirectionOut, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDirection(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDirection(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseDirection(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseDirection(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected log.Category
		wantErr  bool
	}{
		{"message", log.CategoryMessage, false},
		{"MESSAGE", log.CategoryMessage, false},
		{"control", log.CategoryControl, false},
		{"state", log.CategoryState, false},
		{"error", log.CategoryError, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := parseCategory(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCategory(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseCategory(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseCategory(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		}
	}
}

func TestRunViewFromFile(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "conn-1",
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Chat:         &log.ChatEvent{MessageType: "MESSAGE", Size: 5},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "conn-1",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPong},
		},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "MESSAGE") {
		t.Errorf("expected MESSAGE event, got: %s", output)
	}
	if !strings.Contains(output, "PONG") {
		t.Errorf("expected PONG event, got: %s", output)
	}
}
