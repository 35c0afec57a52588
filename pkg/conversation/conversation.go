// Package conversation holds the chat transcript shown by the terminal
// client and folds chat stream events into it.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/mailroom/pkg/backend"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrBusy is returned by Submit while an answer is still streaming.
	ErrBusy = errors.New("an answer is already in progress")

	// ErrAborted is returned when an answer was abandoned before it finished.
	ErrAborted = errors.New("answer aborted")
)

// failureFormat is the user-facing text that replaces a failed answer.
const failureFormat = "Sorry, I couldn't answer that: %s"

// Message is one entry in the transcript.
type Message struct {
	ID      string
	Role    Role
	Content string
	Sources []backend.Source

	// Streaming is true while the assistant message is still receiving
	// tokens. Once it is false the message never changes again.
	Streaming bool

	// Failed is set when the answer was replaced by a failure message.
	Failed bool

	// Interrupted is set when the answer was abandoned before done.
	Interrupted bool

	// Err is the cause of a failed answer.
	Err error
}

// Conversation is an ordered transcript with at most one open assistant
// message. It is safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
	open     int
}

// New returns an empty conversation.
func New() *Conversation {
	return &Conversation{open: -1}
}

// Submit appends the user question and an empty assistant placeholder, and
// marks the conversation busy. It returns a copy of the placeholder.
func (c *Conversation) Submit(question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, backend.ErrEmptyQuestion
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open >= 0 {
		return Message{}, ErrBusy
	}

	c.messages = append(c.messages,
		Message{ID: uuid.NewString(), Role: RoleUser, Content: question},
		Message{ID: uuid.NewString(), Role: RoleAssistant, Streaming: true},
	)
	c.open = len(c.messages) - 1
	return copyMessage(c.messages[c.open]), nil
}

// Apply folds one stream event into the open assistant message and returns
// its updated copy. It reports false when no message is open, in which case
// the event is ignored.
func (c *Conversation) Apply(ev backend.Event) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open < 0 {
		return Message{}, false
	}
	msg := &c.messages[c.open]

	switch ev.Kind {
	case backend.EventSources:
		msg.Sources = append([]backend.Source(nil), ev.Sources...)
	case backend.EventToken:
		msg.Content += ev.Token
	case backend.EventDone:
		c.closeOpen()
	case backend.EventError:
		msg.Content = fmt.Sprintf(failureFormat, ev.Message)
		msg.Failed = true
		msg.Err = ev.Err
		if msg.Err == nil {
			msg.Err = errors.New(ev.Message)
		}
		c.closeOpen()
	default:
		return copyMessage(*msg), false
	}

	return copyMessage(*msg), true
}

// Fail replaces the open assistant message with a failure message.
func (c *Conversation) Fail(err error) (Message, bool) {
	return c.Apply(backend.Event{Kind: backend.EventError, Message: err.Error(), Err: err})
}

// Abort closes the open assistant message, keeping whatever content it has.
func (c *Conversation) Abort() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open < 0 {
		return Message{}, false
	}
	msg := &c.messages[c.open]
	msg.Interrupted = true
	c.closeOpen()
	return copyMessage(*msg), true
}

// Busy reports whether an assistant message is open.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open >= 0
}

// Messages returns a snapshot of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = copyMessage(m)
	}
	return out
}

// Message returns a copy of the message with the given id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.messages {
		if m.ID == id {
			return copyMessage(m), true
		}
	}
	return Message{}, false
}

// Clear empties the transcript. It fails with ErrBusy while an answer is
// streaming.
func (c *Conversation) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open >= 0 {
		return ErrBusy
	}
	c.messages = nil
	return nil
}

// Restore replaces the transcript with finished messages, such as a saved
// session. It fails with ErrBusy while an answer is streaming.
func (c *Conversation) Restore(messages []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open >= 0 {
		return ErrBusy
	}

	c.messages = make([]Message, 0, len(messages))
	for _, m := range messages {
		m = copyMessage(m)
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Streaming = false
		c.messages = append(c.messages, m)
	}
	return nil
}

func (c *Conversation) closeOpen() {
	c.messages[c.open].Streaming = false
	c.open = -1
}

func copyMessage(m Message) Message {
	if m.Sources != nil {
		m.Sources = append([]backend.Source(nil), m.Sources...)
	}
	return m
}
