package sse

import (
	"bytes"
	"strings"
)

// Decoder incrementally decodes an SSE byte stream into events.
//
// Bytes may arrive split at arbitrary points, including in the middle of a
// line or between the '\r' and '\n' of a CRLF pair. Any trailing partial
// line is buffered until its terminator shows up in a later Feed.
type Decoder struct {
	buf []byte

	// skipLF is set when the previous chunk ended on a bare '\r', so a
	// leading '\n' in the next chunk belongs to the same terminator.
	skipLF bool

	// current accumulates fields for the event being built.
	current Event
	hasData bool
	lastID  string
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the decoder's buffer and returns every event completed by
// it, in stream order. It never retains p.
func (d *Decoder) Feed(p []byte) []Event {
	if len(p) == 0 {
		return nil
	}

	if d.skipLF {
		d.skipLF = false
		if p[0] == '\n' {
			p = p[1:]
		}
	}

	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexAny(d.buf, "\r\n")
		if i < 0 {
			break
		}

		line := string(d.buf[:i])
		next := i + 1
		if d.buf[i] == '\r' {
			switch {
			case next < len(d.buf) && d.buf[next] == '\n':
				next++
			case next == len(d.buf):
				d.skipLF = true
			}
		}
		d.buf = d.buf[next:]

		if ev, ok := d.processLine(line); ok {
			events = append(events, ev)
		}
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}

	return events
}

// Flush is called once the source is exhausted. A buffered partial line is
// processed as if it were terminated, and an in-progress event (stream ended
// without a trailing blank line) is returned.
func (d *Decoder) Flush() (Event, bool) {
	if len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		d.processLine(line)
	}

	if !d.hasData {
		d.reset()
		return Event{}, false
	}

	ev := d.current
	d.reset()
	return ev, true
}

// Buffered reports how many bytes of an unterminated line are held.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// LastEventID returns the most recent "id:" value seen on the stream.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// processLine handles one complete line and reports whether it completed an
// event.
func (d *Decoder) processLine(line string) (Event, bool) {
	// A blank line signals the end of the current event and always resets
	// the accumulated event name, even when no data was seen.
	if line == "" {
		if !d.hasData {
			d.reset()
			return Event{}, false
		}
		ev := d.current
		d.reset()
		return ev, true
	}

	// Lines starting with ':' are comments (often keep-alives).
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	d.parseLine(line)
	return Event{}, false
}

// parseLine accumulates a single "field:value" line into the current event.
//
// Per the SSE spec, the first space after the colon is optional and stripped
// if present. A line with no colon is a field name with an empty value.
func (d *Decoder) parseLine(line string) {
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "data":
		if d.hasData {
			// Multiple data fields are joined with "\n".
			d.current.Data += "\n"
		}
		d.current.Data += value
		d.hasData = true
	case "event":
		d.current.Type = value
	case "id":
		// IDs containing NULL are ignored per the SSE spec.
		if !strings.ContainsRune(value, 0) {
			d.current.ID = value
			d.lastID = value
		}
	default:
		// "retry" has no meaning for a one-shot chat stream; other unknown
		// fields are ignored per the SSE spec.
	}
}

// reset clears the accumulated event state for the next event.
func (d *Decoder) reset() {
	d.current = Event{}
	d.hasData = false
}
