package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/mailroom/pkg/sse"
)

// EventKind discriminates the chat stream events.
type EventKind string

const (
	EventSources EventKind = "sources"
	EventToken   EventKind = "token"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// Event is one decoded chat stream event. Exactly one payload field is
// meaningful, selected by Kind.
type Event struct {
	Kind EventKind

	// Sources is set for EventSources. Never nil for that kind.
	Sources []Source

	// Token is set for EventToken.
	Token string

	// Message is the user-facing reason for EventError.
	Message string

	// Err is the underlying error for transport failures. It is nil when the
	// backend itself sent an error event.
	Err error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

func errorEvent(err error) Event {
	msg := err.Error()
	var se *StatusError
	if errors.As(err, &se) {
		msg = se.Reason()
	}
	return Event{Kind: EventError, Message: msg, Err: err}
}

type sourcesPayload struct {
	Sources []Source `json:"sources"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// DecodeEvent converts one named SSE frame into an Event.
//
// Frames must carry an "event:" name; the payload is the JSON in "data:".
// A done frame may have an empty or "{}" payload.
func DecodeEvent(frame *sse.Event) (Event, error) {
	switch EventKind(frame.Type) {
	case EventSources:
		var p sourcesPayload
		if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
			return Event{}, fmt.Errorf("decoding sources: %w", err)
		}
		if p.Sources == nil {
			p.Sources = []Source{}
		}
		return Event{Kind: EventSources, Sources: p.Sources}, nil

	case EventToken:
		var p tokenPayload
		if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
			return Event{}, fmt.Errorf("decoding token: %w", err)
		}
		return Event{Kind: EventToken, Token: p.Token}, nil

	case EventDone:
		if frame.Data != "" && !json.Valid([]byte(frame.Data)) {
			return Event{}, fmt.Errorf("decoding done: invalid JSON %q", frame.Data)
		}
		return Event{Kind: EventDone}, nil

	case EventError:
		var p errorPayload
		if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
			return Event{}, fmt.Errorf("decoding error: %w", err)
		}
		if p.Error == "" {
			p.Error = "the assistant reported an error"
		}
		return Event{Kind: EventError, Message: p.Error}, nil

	case "":
		return Event{}, ErrUnnamedFrame

	default:
		return Event{}, fmt.Errorf("%w %q", ErrUnknownEvent, frame.Type)
	}
}
