package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	transcriptFile = "last_chat.json"
)

// Transcript is the saved state of the most recent chat session.
type Transcript struct {
	// Backend is the base URL the session talked to.
	Backend string `json:"backend"`

	SavedAt time.Time `json:"saved_at"`

	// Entries is the conversation in chronological order (oldest first).
	Entries []TranscriptEntry `json:"entries"`
}

// TranscriptEntry is a single finished message of a saved chat.
type TranscriptEntry struct {
	Role    string             `json:"role"`
	Content string             `json:"content"`
	Failed  bool               `json:"failed,omitempty"`
	Sources []TranscriptSource `json:"sources,omitempty"`
}

// TranscriptSource is the part of a cited email kept with a saved answer.
type TranscriptSource struct {
	MessageID string `json:"message_id"`
	Subject   string `json:"subject,omitempty"`
	FromAddr  string `json:"from_addr,omitempty"`
	Date      string `json:"date,omitempty"`
}

// LoadTranscript loads the last chat transcript from a target .mailroom/last_chat.json.
// Returns nil, nil if no transcript has been saved.
func (m *Manager) LoadTranscript(overrideDir string) (*Transcript, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, transcriptFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	t := &Transcript{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}

	return t, nil
}

// SaveTranscript persists t to a target .mailroom/last_chat.json, replacing
// any earlier transcript.
func (m *Manager) SaveTranscript(t *Transcript, overrideDir string) error {
	if t == nil {
		return errors.New("cannot save nil transcript")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling transcript: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, transcriptFile), data, 0o600); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	return nil
}

// ClearTranscript removes the saved transcript. Returns nil if there is none.
func (m *Manager) ClearTranscript(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, transcriptFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing transcript: %w", err)
	}

	return nil
}
