package sse

import (
	"errors"
	"io"
)

const (
	defaultReadSize = 4 * 1024

	// DefaultMaxLineSize bounds how much of a single unterminated line the
	// Reader will buffer before giving up on the stream.
	DefaultMaxLineSize = 1024 * 1024
)

// ErrLineTooLong is returned by Reader.Next when a line exceeds the
// configured maximum without a terminator.
var ErrLineTooLong = errors.New("sse: line too long")

// Reader reads SSE events from a source io.Reader while optionally writing
// all raw bytes verbatim to a tee io.Writer.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────┐
// │  Reader.Next()   │──▶│ tee io.Writer     │
// └──────────────────┘   └───────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
//
// Next hands out one event at a time and only reads from the source once
// every event decoded from the previous read has been consumed. Callers can
// therefore apply and render each event before more bytes are pulled off
// the connection.
type Reader struct {
	src         io.Reader
	tee         io.Writer
	dec         *Decoder
	buf         []byte
	maxLineSize int

	pending []Event
	err     error
	flushed bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTee mirrors every byte read from the source to w.
func WithTee(w io.Writer) ReaderOption {
	return func(r *Reader) {
		r.tee = w
	}
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxLineSize = n
		}
	}
}

// WithReadSize sets the size of each read from the source.
func WithReadSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.buf = make([]byte, n)
		}
	}
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:         src,
		dec:         NewDecoder(),
		buf:         make([]byte, defaultReadSize),
		maxLineSize: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next parsed SSE event. It blocks until a complete event
// is available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted.
//
// An event left unterminated at EOF is still yielded. A read error other
// than io.EOF is returned once every event decoded before it was consumed.
func (r *Reader) Next() (*Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return &ev, nil
		}

		if r.err != nil {
			if !errors.Is(r.err, io.EOF) {
				return nil, r.err
			}
			if r.flushed {
				return nil, nil
			}
			r.flushed = true
			if ev, ok := r.dec.Flush(); ok {
				return &ev, nil
			}
			return nil, nil
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			chunk := r.buf[:n]
			if r.tee != nil {
				if _, werr := r.tee.Write(chunk); werr != nil {
					return nil, werr
				}
			}
			r.pending = r.dec.Feed(chunk)
			if r.dec.Buffered() > r.maxLineSize {
				r.pending = nil
				r.err = ErrLineTooLong
			}
		}
		if err != nil && r.err == nil {
			r.err = err
		}
	}
}

// LastEventID returns the most recent "id:" value seen on the stream.
func (r *Reader) LastEventID() string {
	return r.dec.LastEventID()
}
