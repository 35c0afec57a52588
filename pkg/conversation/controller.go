package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/logger"
)

// EventStream is a pull iterator of chat stream events. *backend.Stream
// implements it.
type EventStream interface {
	Next() (backend.Event, bool)
	Close() error
}

// StreamOpener starts a streaming answer for req.
type StreamOpener func(ctx context.Context, req backend.ChatRequest) (EventStream, error)

// ClientOpener opens chat streams against a backend client.
func ClientOpener(client *backend.Client, opts ...backend.StreamOption) StreamOpener {
	return func(ctx context.Context, req backend.ChatRequest) (EventStream, error) {
		return client.StreamChat(ctx, req, opts...)
	}
}

// Params are the optional generation parameters forwarded with a question.
type Params struct {
	TopK        *int
	Temperature *float64
	MaxTokens   *int
}

// Controller owns the single open answer stream of a conversation.
//
// Starting a new answer closes and abandons the previous stream first. Every
// stream is tagged with a generation; events read from a stream that is no
// longer current are discarded and never reach the conversation.
type Controller struct {
	conv   *Conversation
	open   StreamOpener
	logger *slog.Logger

	mu      sync.Mutex
	gen     uint64
	current EventStream
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger.OrNop(l)
	}
}

// NewController returns a Controller feeding conv from streams made by open.
func NewController(conv *Conversation, open StreamOpener, opts ...ControllerOption) *Controller {
	c := &Controller{
		conv:   conv,
		open:   open,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conversation returns the transcript the controller writes to.
func (c *Controller) Conversation() *Conversation {
	return c.conv
}

// Turn is one answer being streamed into the conversation.
type Turn struct {
	ctl    *Controller
	gen    uint64
	stream EventStream
	id     string
	done   bool
}

// ID returns the id of the assistant message this turn fills in.
func (t *Turn) ID() string {
	return t.id
}

// Start submits question and opens its answer stream. Any answer still in
// progress is aborted and its stream closed before the new one opens.
func (c *Controller) Start(ctx context.Context, question string, p Params) (*Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, backend.ErrEmptyQuestion
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.abortLocked()

	placeholder, err := c.conv.Submit(question)
	if err != nil {
		return nil, err
	}

	stream, err := c.open(ctx, backend.ChatRequest{
		Question:    question,
		TopK:        p.TopK,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		c.conv.Fail(err)
		return nil, err
	}

	c.gen++
	c.current = stream
	c.logger.Debug("answer started", "generation", c.gen, "message_id", placeholder.ID)

	return &Turn{ctl: c, gen: c.gen, stream: stream, id: placeholder.ID}, nil
}

// Next reads one event, applies it, and returns the updated assistant
// message. It returns false once the answer is finished or was superseded.
func (t *Turn) Next() (Message, bool) {
	for !t.done {
		ev, ok := t.stream.Next()
		if msg, applied := t.apply(ev, ok); applied {
			return msg, true
		}
	}
	return Message{}, false
}

func (t *Turn) apply(ev backend.Event, ok bool) (Message, bool) {
	c := t.ctl
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.gen != c.gen {
		if ok {
			c.logger.Debug("discarding event from a replaced stream",
				"generation", t.gen,
				"kind", ev.Kind,
			)
		}
		t.done = true
		return Message{}, false
	}

	if !ok {
		// Ended without done or error: the stream was closed under us.
		c.conv.Abort()
		c.releaseLocked()
		t.done = true
		return Message{}, false
	}

	msg, applied := c.conv.Apply(ev)
	if ev.Terminal() {
		c.releaseLocked()
		t.done = true
	}
	return msg, applied
}

// Close abandons the turn if it is still the current one.
func (t *Turn) Close() {
	c := t.ctl
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.gen == c.gen {
		c.abortLocked()
	}
}

// Ask runs a whole answer, calling onUpdate after each applied event, and
// returns the final assistant message. A failed answer is returned together
// with its cause.
func (c *Controller) Ask(ctx context.Context, question string, p Params, onUpdate func(Message)) (Message, error) {
	turn, err := c.Start(ctx, question, p)
	if err != nil {
		return Message{}, err
	}
	defer turn.Close()

	for {
		msg, ok := turn.Next()
		if !ok {
			break
		}
		if onUpdate != nil {
			onUpdate(msg)
		}
	}

	final, _ := c.conv.Message(turn.ID())
	switch {
	case final.Failed:
		return final, final.Err
	case final.Interrupted:
		return final, ErrAborted
	}
	return final, nil
}

// Abort closes the open stream, if any, and closes its assistant message.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked()
}

// Close releases the open stream on teardown.
func (c *Controller) Close() error {
	c.Abort()
	return nil
}

func (c *Controller) abortLocked() {
	if c.current == nil {
		return
	}
	c.gen++
	c.releaseLocked()
	c.conv.Abort()
	c.logger.Debug("answer aborted", "generation", c.gen-1)
}

func (c *Controller) releaseLocked() {
	if c.current == nil {
		return
	}
	if err := c.current.Close(); err != nil {
		c.logger.Debug("closing answer stream", "error", err)
	}
	c.current = nil
}
