package mockbackend

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/mailroom/pkg/backend"
)

const defaultTopK = 5

type detailResponse struct {
	Detail string `json:"detail"`
}

func detail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(detailResponse{Detail: msg})
}

func newAccount() *backend.Account {
	return &backend.Account{
		ID:           "1",
		Email:        "demo@mailroom.example.com",
		Provider:     "google",
		NylasGrantID: "grant-" + uuid.NewString()[:8],
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(backend.Health{Status: "ok"})
}

// handleAuthURL issues an auth URL that points back at this server's own
// callback, so following it in a browser connects the mock account.
func (s *Server) handleAuthURL(c *fiber.Ctx) error {
	state := uuid.NewString()

	s.mu.Lock()
	s.states[state] = struct{}{}
	s.mu.Unlock()

	q := url.Values{}
	q.Set("code", "mock-code")
	q.Set("state", state)

	return c.JSON(backend.AuthURL{
		URL:   c.BaseURL() + "/nylas/callback?" + q.Encode(),
		State: state,
	})
}

func (s *Server) handleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return detail(c, fiber.StatusBadRequest, "Missing code or state")
	}

	s.mu.Lock()
	_, known := s.states[state]
	if known {
		delete(s.states, state)
		if s.account == nil {
			s.account = newAccount()
		}
	}
	account := s.account
	s.mu.Unlock()

	if !known {
		return detail(c, fiber.StatusBadRequest, "Invalid state")
	}

	s.logger.Info("mock account connected", "email", account.Email)
	return c.SendString(fmt.Sprintf("Connected %s. You can close this window.", account.Email))
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	return c.JSON(fiber.Map{"account": account})
}

func (s *Server) handleSync(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account == nil {
		return detail(c, fiber.StatusBadRequest, "No connected account")
	}
	s.synced = true

	return c.JSON(backend.SyncResult{
		Synced:        len(s.mailbox),
		IndexedChunks: chunks(s.mailbox),
	})
}

// ready checks the preconditions shared by the chat endpoints and returns a
// copy of the mailbox.
func (s *Server) ready() ([]Email, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account == nil {
		return nil, "No connected account"
	}
	if !s.synced {
		return nil, "No messages indexed yet. Run a sync first."
	}
	return append([]Email(nil), s.mailbox...), ""
}

func parseChat(c *fiber.Ctx) (backend.ChatRequest, error) {
	var req backend.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fmt.Errorf("invalid request body")
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return req, fmt.Errorf("question must not be empty")
	}
	if req.TopK != nil && *req.TopK < 1 {
		return req, fmt.Errorf("top_k must be positive")
	}
	return req, nil
}

func topK(req backend.ChatRequest) int {
	if req.TopK != nil {
		return *req.TopK
	}
	return defaultTopK
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	req, err := parseChat(c)
	if err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	mailbox, reason := s.ready()
	if reason != "" {
		return detail(c, fiber.StatusBadRequest, reason)
	}

	start := time.Now()
	sources := retrieve(mailbox, req.Question, topK(req))
	answer := compose(req.Question, sources, mailbox)

	return c.JSON(backend.ChatResponse{
		Answer:  answer,
		Sources: sources,
		Metadata: map[string]any{
			"model":      "mock",
			"top_k":      topK(req),
			"latency_ms": time.Since(start).Milliseconds(),
		},
	})
}

// evalCases are the questions the evaluation run answers, with the reference
// answers it grades against.
var evalCases = []struct {
	question  string
	reference string
}{
	{"When is the team offsite?", "October 24 at the lake house"},
	{"Which invoice is overdue?", "Invoice 2291"},
	{"When does open enrollment close?", "October 31"},
}

func (s *Server) handleEval(c *fiber.Ctx) error {
	mailbox, reason := s.ready()
	if reason != "" {
		return detail(c, fiber.StatusBadRequest, "No messages to evaluate")
	}

	items := make([]map[string]any, 0, len(evalCases))
	for _, ec := range evalCases {
		start := time.Now()
		sources := retrieve(mailbox, ec.question, defaultTopK)
		answer := compose(ec.question, sources, mailbox)

		relevance := 0.0
		if len(sources) > 0 && sources[0].Score != nil {
			relevance = *sources[0].Score
		}
		faithfulness := 0.0
		if strings.Contains(strings.ToLower(answer), strings.ToLower(ec.reference)) {
			faithfulness = 1.0
		}

		items = append(items, map[string]any{
			"question":     ec.question,
			"reference":    ec.reference,
			"answer":       answer,
			"faithfulness": faithfulness,
			"relevance":    relevance,
			"latency_ms":   time.Since(start).Milliseconds(),
		})
	}

	return c.JSON(backend.EvalResponse{Items: items, Total: len(items)})
}
