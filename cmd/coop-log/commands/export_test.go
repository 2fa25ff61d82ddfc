package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coop-protocol/coop-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.clog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func TestExportToJSONL(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 32, 123456000, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Chat: &log.ChatEvent{
				MessageType: "MESSAGE",
				Size:        5,
			},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "abc12345",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{
				Type: log.ControlMsgPong,
			},
		},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunExport(path, "jsonl", &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if first["connection_id"] != "abc12345" {
		t.Errorf("expected connection_id abc12345, got %v", first["connection_id"])
	}
	if first["direction"] != "OUT" {
		t.Errorf("expected direction OUT, got %v", first["direction"])
	}
	if first["type"] != "MESSAGE" {
		t.Errorf("expected type MESSAGE, got %v", first["type"])
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("second line is not valid JSON: %v", err)
	}
	if second["type"] != "PONG" {
		t.Errorf("expected type PONG, got %v", second["type"])
	}
}

func TestExportToCSV(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "conn-1",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Username:     "alice@workstation@42000",
			Chat: &log.ChatEvent{
				MessageType: "EDITOR",
				Size:        120,
				Sender:      "alice@workstation@42000",
			},
		},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunExport(path, "csv", &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 record, got %d rows", len(records))
	}

	header := records[0]
	if header[0] != "timestamp" || header[1] != "connection_id" {
		t.Errorf("unexpected header: %v", header)
	}

	row := records[1]
	if row[1] != "conn-1" {
		t.Errorf("expected conn-1, got %s", row[1])
	}
	if row[2] != "IN" {
		t.Errorf("expected IN, got %s", row[2])
	}
	if row[6] != "alice@workstation@42000" {
		t.Errorf("expected username, got %s", row[6])
	}
	if row[7] != "EDITOR" {
		t.Errorf("expected EDITOR type, got %s", row[7])
	}
	if row[8] != "120" {
		t.Errorf("expected size 120, got %s", row[8])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	path := createTestLogFile(t, []log.Event{{Timestamp: time.Now()}})

	var buf bytes.Buffer
	err := RunExport(path, "xml", &buf)
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExportMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunExport(filepath.Join(t.TempDir(), "missing.clog"), "jsonl", &buf); err == nil {
		t.Fatal("expected error for missing file")
	}
}
