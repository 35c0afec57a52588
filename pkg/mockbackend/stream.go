package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	sse "github.com/tmaxmax/go-sse"

	"github.com/papercomputeco/mailroom/pkg/backend"
)

// Markers a question can carry to make the stream misbehave on purpose.
const (
	// MarkerError ends the stream with a backend error event.
	MarkerError = "#error"

	// MarkerMalformed injects a frame whose payload is not JSON.
	MarkerMalformed = "#malformed"

	// MarkerEOF drops the connection before the done event.
	MarkerEOF = "#eof"

	// MarkerStall stops sending after the first token and holds the
	// connection open.
	MarkerStall = "#stall"
)

// maxStall bounds how long a stalled stream holds its connection.
const maxStall = 10 * time.Minute

var errStalled = errors.New("stream stalled on request")

var (
	sourcesType = sse.Type(string(backend.EventSources))
	tokenType   = sse.Type(string(backend.EventToken))
	doneType    = sse.Type(string(backend.EventDone))
	errorType   = sse.Type(string(backend.EventError))
)

func (s *Server) handleChatStream(c *fiber.Ctx) error {
	req, err := parseChat(c)
	if err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	mailbox, reason := s.ready()
	if reason != "" {
		return detail(c, fiber.StatusBadRequest, reason)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe gives per-frame flushing: fasthttp writes each chunk to the
	// socket as soon as the pipe reader yields it.
	pr, pw := io.Pipe()
	go s.writeAnswer(pw, req, mailbox)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// writeAnswer streams sources, one token per word, then done.
func (s *Server) writeAnswer(pw *io.PipeWriter, req backend.ChatRequest, mailbox []Email) {
	question := req.Question
	for _, m := range []string{MarkerError, MarkerMalformed, MarkerEOF, MarkerStall} {
		question = strings.ReplaceAll(question, m, "")
	}

	sources := retrieve(mailbox, question, topK(req))
	answer := compose(question, sources, mailbox)
	tokens := tokenize(answer)

	if err := s.writeStream(pw, req.Question, sources, tokens); err != nil {
		s.logger.Debug("chat stream ended early", "error", err)
		_ = pw.CloseWithError(err)
		return
	}
	_ = pw.Close()
}

func (s *Server) writeStream(w io.Writer, question string, sources []backend.Source, tokens []string) error {
	if err := writeEvent(w, sourcesType, map[string]any{"sources": sources}); err != nil {
		return err
	}

	for i, tok := range tokens {
		if i == 1 {
			switch {
			case strings.Contains(question, MarkerError):
				return writeEvent(w, errorType, map[string]any{"error": "the mock backend was asked to fail"})
			case strings.Contains(question, MarkerEOF):
				return nil
			case strings.Contains(question, MarkerStall):
				select {
				case <-s.done:
				case <-time.After(maxStall):
				}
				return errStalled
			case strings.Contains(question, MarkerMalformed):
				if err := writeRaw(w, tokenType, "{not json"); err != nil {
					return err
				}
			}
		}

		if err := writeEvent(w, tokenType, map[string]any{"token": tok}); err != nil {
			return err
		}
		if s.config.TokenDelay > 0 {
			time.Sleep(s.config.TokenDelay)
		}
	}

	return writeEvent(w, doneType, map[string]any{"sources": sources})
}

func writeEvent(w io.Writer, typ sse.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return writeRaw(w, typ, string(data))
}

func writeRaw(w io.Writer, typ sse.EventType, data string) error {
	msg := &sse.Message{Type: typ}
	msg.AppendData(data)
	_, err := msg.WriteTo(w)
	return err
}
