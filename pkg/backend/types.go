package backend

import (
	"bytes"
	"encoding/json"
	"time"
)

// AccountID accepts either a JSON number or a JSON string.
type AccountID string

func (id *AccountID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = AccountID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = AccountID(n.String())
	return nil
}

// Account is the connected email account as reported by GET /auth/me.
type Account struct {
	ID           AccountID `json:"id"`
	Email        string    `json:"email"`
	Provider     string    `json:"provider"`
	NylasGrantID string    `json:"nylas_grant_id,omitempty"`
	CreatedAt    string    `json:"created_at,omitempty"`
}

// AuthURL is the OAuth redirect issued by GET /auth/nylas/url.
type AuthURL struct {
	URL   string `json:"auth_url"`
	State string `json:"state"`
}

type meResponse struct {
	Account *Account `json:"account"`
}

// SyncResult is the outcome of POST /sync/latest.
type SyncResult struct {
	Synced        int `json:"synced"`
	IndexedChunks int `json:"indexed_chunks"`
}

// Health is the body of GET /health.
type Health struct {
	Status string `json:"status"`
}

// Source is a citation record pointing at the email an answer drew from.
type Source struct {
	MessageID  string   `json:"message_id"`
	Subject    string   `json:"subject,omitempty"`
	FromAddr   string   `json:"from_addr,omitempty"`
	Date       string   `json:"date,omitempty"`
	ThreadID   string   `json:"thread_id,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
	Text       string   `json:"text,omitempty"`
	ChunkIndex *int     `json:"chunk_index,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Distance   *float64 `json:"distance,omitempty"`
}

// Excerpt returns whichever body excerpt the backend supplied.
func (s Source) Excerpt() string {
	if s.Snippet != "" {
		return s.Snippet
	}
	return s.Text
}

var sourceDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// ParsedDate parses Date in the formats the backend is known to emit.
func (s Source) ParsedDate() (time.Time, bool) {
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, s.Date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ChatRequest is the body of POST /chat and POST /chat/stream. Optional
// generation parameters are left out of the JSON when unset so the backend
// applies its own defaults.
type ChatRequest struct {
	Question    string   `json:"question"`
	TopK        *int     `json:"top_k,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// ChatResponse is the non-streaming answer from POST /chat.
type ChatResponse struct {
	Answer   string         `json:"answer"`
	Sources  []Source       `json:"sources"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EvalResponse is the body of POST /eval/run. Items are kept loosely typed;
// their fields depend on the evaluator the backend runs.
type EvalResponse struct {
	Items []map[string]any `json:"items"`
	Total int              `json:"total"`
}
