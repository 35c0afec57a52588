package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/mailroom/pkg/sse"
)

// Stream is one in-flight POST /chat/stream response.
//
// The connection is opened lazily by the first call to Next, and Next pulls
// exactly one event per call, so a caller can apply and render each token
// before any more bytes are read. The sequence ends after a done or error
// event; transport failures surface as a single error event.
//
// Next must be called from a single goroutine. Close may be called from any
// goroutine, at any time, and more than once.
type Stream struct {
	client *Client
	req    ChatRequest
	ctx    context.Context
	cancel context.CancelFunc
	tee    io.Writer
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	body   io.ReadCloser

	reader   *sse.Reader
	idle     *idleWatch
	finished bool
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithRawTee mirrors the raw response bytes of the stream to w.
func WithRawTee(w io.Writer) StreamOption {
	return func(s *Stream) {
		s.tee = w
	}
}

// StreamChat prepares a streaming chat request for req. No connection is
// made until the first call to Next. The caller must Close the stream.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, opts ...StreamOption) (*Stream, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		client: c,
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		logger: c.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the next event and true, or false once the stream has ended
// or was closed. After Close, Next never returns another event.
func (s *Stream) Next() (Event, bool) {
	if s.finished || s.isClosed() {
		return Event{}, false
	}

	if s.reader == nil {
		if err := s.open(); err != nil {
			if s.isClosed() {
				s.finish()
				return Event{}, false
			}
			return s.fail(err)
		}
	}

	for {
		frame, err := s.reader.Next()
		if s.isClosed() {
			s.finish()
			return Event{}, false
		}

		if err != nil {
			if s.idle != nil && s.idle.expired() {
				return s.fail(ErrStreamIdle)
			}
			return s.fail(fmt.Errorf("reading chat stream: %w", err))
		}

		if frame == nil {
			return s.fail(ErrUnexpectedEOF)
		}

		ev, err := DecodeEvent(frame)
		if err != nil {
			s.logger.Warn("dropping chat stream frame",
				"event", frame.Type,
				"error", err,
			)
			continue
		}

		s.logger.Debug("chat stream event", "kind", ev.Kind)

		if ev.Terminal() {
			s.finish()
		}
		return ev, true
	}
}

// Close aborts the request and releases the connection. It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	body := s.body
	s.body = nil
	s.mu.Unlock()

	s.cancel()
	if body != nil {
		return body.Close()
	}
	return nil
}

func (s *Stream) open() error {
	data, err := json.Marshal(s.req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.client.baseURL+"/chat/stream", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if d := s.client.idleTimeout; d > 0 {
		s.idle = newIdleWatch(d, s.cancel)
	}

	// The stream is bounded by its context and the idle timeout, never by
	// the overall timeout of the JSON endpoints.
	hc := *s.client.httpClient
	hc.Timeout = 0

	s.logger.Debug("opening chat stream",
		"backend", s.client.baseURL,
		"question_len", len(s.req.Question),
	)

	resp, err := hc.Do(req)
	if err != nil {
		if s.idle != nil && s.idle.expired() {
			return ErrStreamIdle
		}
		return fmt.Errorf("POST /chat/stream: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return err
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		s.logger.Debug("unexpected chat stream content type", "content_type", ct)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		resp.Body.Close()
		return context.Canceled
	}
	s.body = resp.Body
	s.mu.Unlock()

	var src io.Reader = resp.Body
	if s.idle != nil {
		s.idle.touch()
		src = &idleReader{r: resp.Body, w: s.idle}
	}

	var opts []sse.ReaderOption
	if s.tee != nil {
		opts = append(opts, sse.WithTee(s.tee))
	}
	s.reader = sse.NewReader(src, opts...)
	return nil
}

func (s *Stream) fail(err error) (Event, bool) {
	s.logger.Debug("chat stream failed", "error", err)
	s.finish()
	return errorEvent(err), true
}

func (s *Stream) finish() {
	s.finished = true

	s.mu.Lock()
	body := s.body
	s.body = nil
	s.mu.Unlock()

	if s.idle != nil {
		s.idle.stop()
	}
	if body != nil {
		_ = body.Close()
	}
	s.cancel()
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// idleWatch cancels the stream when no bytes arrive for d.
type idleWatch struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleWatch(d time.Duration, cancel context.CancelFunc) *idleWatch {
	w := &idleWatch{d: d}
	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

func (w *idleWatch) touch() {
	if !w.fired.Load() {
		w.timer.Reset(w.d)
	}
}

func (w *idleWatch) stop() {
	w.timer.Stop()
}

func (w *idleWatch) expired() bool {
	return w.fired.Load()
}

type idleReader struct {
	r io.Reader
	w *idleWatch
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.w.touch()
	}
	return n, err
}
