package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Decoder reads frames from a byte stream.
//
// The decoder never assumes a frame arrives in one read: header bytes
// are accumulated until the separator appears as a suffix of the
// buffered data, then the payload is read as an exact count. Short
// reads from the underlying reader resume transparently.
type Decoder struct {
	br  *bufio.Reader
	buf bytes.Buffer

	// maxBuffer caps the header buffer; defaults to MaxBufferSize.
	maxBuffer int
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		br:        bufio.NewReader(r),
		maxBuffer: MaxBufferSize,
	}
}

// NewDecoderWithLimit creates a decoder with a custom header buffer cap.
// Intended for tests; production code uses MaxBufferSize.
func NewDecoderWithLimit(r io.Reader, limit int) *Decoder {
	d := NewDecoder(r)
	d.maxBuffer = limit
	return d
}

// Buffered reports whether the decoder holds unconsumed input, either
// in its own header buffer or in the underlying buffered reader.
func (d *Decoder) Buffered() bool {
	return d.buf.Len() > 0 || d.br.Buffered() > 0
}

// WaitInput blocks until at least one byte of the next frame is
// available (or the underlying reader fails) without consuming it.
// Callers use it to distinguish "idle between frames" from "stalled
// mid-frame" when applying read deadlines.
func (d *Decoder) WaitInput() error {
	_, err := d.br.Peek(1)
	return err
}

// ReadFrame reads the next complete frame from the stream.
//
// On any error the stream must be considered unusable: the format has
// no resynchronization point, so a malformed header or a short payload
// poisons everything after it.
func (d *Decoder) ReadFrame() (Frame, error) {
	token, err := d.readToken()
	if err != nil {
		return Frame{}, err
	}

	msgType, err := ParseType(token)
	if err != nil {
		return Frame{}, err
	}

	lengthField, err := d.readToken()
	if err != nil {
		return Frame{}, err
	}

	length, err := strconv.Atoi(lengthField)
	if err != nil || length <= 0 {
		return Frame{}, fmt.Errorf("%w: %q", ErrBadLength, lengthField)
	}
	if length > d.maxBuffer {
		return Frame{}, fmt.Errorf("%w: payload of %d bytes", ErrBufferOverflow, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.br, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("reading %d byte payload: %w", length, err)
	}

	return Frame{Type: msgType, Payload: payload}, nil
}

// readToken accumulates bytes until the buffer ends with Separator,
// then returns the buffer content with the separator stripped.
func (d *Decoder) readToken() (string, error) {
	d.buf.Reset()

	for {
		b, err := d.br.ReadByte()
		if err != nil {
			return "", err
		}
		d.buf.WriteByte(b)

		if d.buf.Len() > d.maxBuffer {
			return "", ErrBufferOverflow
		}

		if hasSeparatorSuffix(d.buf.Bytes()) {
			token := d.buf.Bytes()
			return string(token[:len(token)-SeparatorSize]), nil
		}
	}
}

func hasSeparatorSuffix(b []byte) bool {
	return len(b) >= SeparatorSize && string(b[len(b)-SeparatorSize:]) == Separator
}
