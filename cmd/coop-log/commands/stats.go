package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/coop-protocol/coop-go/pkg/log"
)

// connStats accumulates statistics for a single connection.
type connStats struct {
	Username   string
	RemoteAddr string
	First      time.Time
	Last       time.Time
	EventsIn   int
	EventsOut  int
	BytesIn    int
	BytesOut   int
	Pings      int
	Pongs      int
	Messages   int
	Errors     int
}

// RunStats prints aggregate statistics for the log file.
func RunStats(path string, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := make(map[string]*connStats)
	total := 0

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		total++
		s, ok := stats[event.ConnectionID]
		if !ok {
			s = &connStats{First: event.Timestamp}
			stats[event.ConnectionID] = s
		}
		accumulate(s, event)
	}

	printStats(output, stats, total)
	return nil
}

func accumulate(s *connStats, event log.Event) {
	if event.Timestamp.Before(s.First) {
		s.First = event.Timestamp
	}
	if event.Timestamp.After(s.Last) {
		s.Last = event.Timestamp
	}
	if event.Username != "" {
		s.Username = event.Username
	}
	if event.RemoteAddr != "" {
		s.RemoteAddr = event.RemoteAddr
	}

	size := eventSize(event)
	if event.Direction == log.DirectionIn {
		s.EventsIn++
		s.BytesIn += size
	} else {
		s.EventsOut++
		s.BytesOut += size
	}

	switch {
	case event.ControlMsg != nil:
		if event.ControlMsg.Type == log.ControlMsgPing {
			s.Pings++
		} else {
			s.Pongs++
		}
	case event.Chat != nil:
		s.Messages++
	case event.Error != nil:
		s.Errors++
	}
}

func printStats(w io.Writer, stats map[string]*connStats, total int) {
	fmt.Fprintf(w, "Total events: %d\n", total)
	fmt.Fprintf(w, "Connections:  %d\n\n", len(stats))

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	// Order by first activity so the output follows the session.
	sort.Slice(ids, func(i, j int) bool {
		return stats[ids[i]].First.Before(stats[ids[j]].First)
	})

	for _, id := range ids {
		s := stats[id]
		fmt.Fprintf(w, "Connection %s\n", shortenConnID(id))
		if s.Username != "" {
			fmt.Fprintf(w, "  Peer:     %s\n", s.Username)
		}
		if s.RemoteAddr != "" {
			fmt.Fprintf(w, "  Address:  %s\n", s.RemoteAddr)
		}
		fmt.Fprintf(w, "  Duration: %s\n", s.Last.Sub(s.First).Round(time.Millisecond))
		fmt.Fprintf(w, "  Events:   %d in / %d out\n", s.EventsIn, s.EventsOut)
		fmt.Fprintf(w, "  Bytes:    %d in / %d out\n", s.BytesIn, s.BytesOut)
		fmt.Fprintf(w, "  Ping:     %d / Pong: %d\n", s.Pings, s.Pongs)
		fmt.Fprintf(w, "  Messages: %d\n", s.Messages)
		if s.Errors > 0 {
			fmt.Fprintf(w, "  Errors:   %d\n", s.Errors)
		}
		fmt.Fprintln(w)
	}
}
