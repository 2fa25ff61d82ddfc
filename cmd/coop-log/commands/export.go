package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/coop-protocol/coop-go/pkg/log"
)

// RunExport converts the log file to the given format ("jsonl" or
// "csv") and writes it to output.
func RunExport(path, format string, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	switch format {
	case "jsonl":
		return exportJSONL(reader, output)
	case "csv":
		return exportCSV(reader, output)
	default:
		return fmt.Errorf("unsupported format: %s (must be jsonl or csv)", format)
	}
}

func exportJSONL(reader *log.Reader, output io.Writer) error {
	encoder := json.NewEncoder(output)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(exportRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, output io.Writer) error {
	w := csv.NewWriter(output)
	defer w.Flush()

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "remote_addr", "username", "type", "size", "detail"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		record := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.RemoteAddr,
			event.Username,
			typeLabel(event),
			strconv.Itoa(eventSize(event)),
			eventDetail(event),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	return nil
}

// exportEvent is the JSON shape of a single exported event. It keeps
// the type-specific payloads so nothing is lost in export.
type exportEvent struct {
	Timestamp    string                `json:"timestamp"`
	ConnectionID string                `json:"connection_id"`
	Direction    string                `json:"direction"`
	Layer        string                `json:"layer"`
	Category     string                `json:"category"`
	RemoteAddr   string                `json:"remote_addr,omitempty"`
	Username     string                `json:"username,omitempty"`
	Type         string                `json:"type"`
	Frame        *log.FrameEvent       `json:"frame,omitempty"`
	StateChange  *log.StateChangeEvent `json:"state_change,omitempty"`
	Chat         *log.ChatEvent        `json:"chat,omitempty"`
	Error        *log.ErrorEventData   `json:"error,omitempty"`
}

func exportRecord(event log.Event) exportEvent {
	return exportEvent{
		Timestamp:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Layer:        event.Layer.String(),
		Category:     event.Category.String(),
		RemoteAddr:   event.RemoteAddr,
		Username:     event.Username,
		Type:         typeLabel(event),
		Frame:        event.Frame,
		StateChange:  event.StateChange,
		Chat:         event.Chat,
		Error:        event.Error,
	}
}

// eventSize extracts the payload size where the event carries one.
func eventSize(event log.Event) int {
	switch {
	case event.Frame != nil:
		return event.Frame.Size
	case event.Chat != nil:
		return event.Chat.Size
	default:
		return 0
	}
}

// eventDetail produces a single-cell summary for CSV output.
func eventDetail(event log.Event) string {
	switch {
	case event.StateChange != nil:
		sc := event.StateChange
		if sc.OldState != "" {
			return fmt.Sprintf("%s: %s -> %s", sc.Entity, sc.OldState, sc.NewState)
		}
		return fmt.Sprintf("%s: -> %s", sc.Entity, sc.NewState)
	case event.Error != nil:
		return event.Error.Message
	case event.Chat != nil:
		return event.Chat.Sender
	default:
		return ""
	}
}
