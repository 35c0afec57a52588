package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyQuestion is returned when a chat is requested without a question.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrStreamIdle is reported when the chat stream delivers no bytes for
	// longer than the configured idle timeout.
	ErrStreamIdle = errors.New("chat stream idle timeout")

	// ErrUnexpectedEOF is reported when the chat stream ends without a done
	// or error event.
	ErrUnexpectedEOF = errors.New("chat stream ended before done")

	// ErrUnnamedFrame marks an SSE frame without an "event:" name.
	ErrUnnamedFrame = errors.New("frame has no event name")

	// ErrUnknownEvent marks an SSE frame with an unrecognized event name.
	ErrUnknownEvent = errors.New("unknown event")
)

// StatusError is returned for any non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, body)
}

// Reason returns the human readable part of the response body. FastAPI style
// {"detail": "..."} bodies are unwrapped; anything else is returned as is.
func (e *StatusError) Reason() string {
	var detail struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &detail); err == nil {
		if s, ok := detail.Detail.(string); ok && s != "" {
			return s
		}
	}

	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return body
}
