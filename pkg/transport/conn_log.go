package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/coop-protocol/coop-go/pkg/log"
	"github.com/coop-protocol/coop-go/pkg/wire"
)

// remoteClosedNormally reports whether err is a clean end of stream
// rather than a fault worth surfacing.
func remoteClosedNormally(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func (c *Conn) event(category log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     category,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		Username:     c.Username(),
	}
}

// logFrame records raw outbound frame bytes.
func (c *Conn) logFrame(frame []byte, direction log.Direction) {
	if _, ok := c.cfg.Logger.(log.NoopLogger); ok {
		return
	}

	data := frame
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}

	ev := c.event(log.CategoryMessage)
	ev.Direction = direction
	ev.Frame = &log.FrameEvent{
		Size:      len(frame),
		Data:      data,
		Truncated: truncated,
	}
	c.cfg.Logger.Log(ev)
}

// logFrameIn records a decoded inbound frame.
func (c *Conn) logFrameIn(frame wire.Frame) {
	if _, ok := c.cfg.Logger.(log.NoopLogger); ok {
		return
	}

	ev := c.event(log.CategoryMessage)
	ev.Direction = log.DirectionIn
	ev.Layer = log.LayerWire
	ev.Chat = &log.ChatEvent{
		MessageType: frame.Type.String(),
		Size:        len(frame.Payload),
		Sender:      c.Username(),
	}
	c.cfg.Logger.Log(ev)
}

func (c *Conn) logControl(t log.ControlMsgType, direction log.Direction) {
	ev := c.event(log.CategoryControl)
	ev.Direction = direction
	ev.ControlMsg = &log.ControlMsgEvent{Type: t}
	c.cfg.Logger.Log(ev)
}

func (c *Conn) logStateChange(oldState, newState string) {
	ev := c.event(log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: oldState,
		NewState: newState,
	}
	c.cfg.Logger.Log(ev)
}

func (c *Conn) logState(newState, reason string) {
	ev := c.event(log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: c.State().String(),
		NewState: newState,
		Reason:   reason,
	}
	c.cfg.Logger.Log(ev)
}

func (c *Conn) logError(err error) {
	ev := c.event(log.CategoryError)
	ev.Error = &log.ErrorEventData{Message: err.Error()}
	c.cfg.Logger.Log(ev)
}
