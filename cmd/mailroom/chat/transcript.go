package chatcmder

import (
	"time"

	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/conversation"
	"github.com/papercomputeco/mailroom/pkg/dotdir"
)

func toTranscript(target string, msgs []conversation.Message) *dotdir.Transcript {
	t := &dotdir.Transcript{
		Backend: target,
		SavedAt: time.Now().UTC(),
		Entries: make([]dotdir.TranscriptEntry, 0, len(msgs)),
	}

	for _, m := range msgs {
		entry := dotdir.TranscriptEntry{
			Role:    string(m.Role),
			Content: m.Content,
			Failed:  m.Failed,
		}
		for _, s := range m.Sources {
			entry.Sources = append(entry.Sources, dotdir.TranscriptSource{
				MessageID: s.MessageID,
				Subject:   s.Subject,
				FromAddr:  s.FromAddr,
				Date:      s.Date,
			})
		}
		t.Entries = append(t.Entries, entry)
	}

	return t
}

func fromTranscript(t *dotdir.Transcript) []conversation.Message {
	msgs := make([]conversation.Message, 0, len(t.Entries))
	for _, e := range t.Entries {
		m := conversation.Message{
			Role:    conversation.Role(e.Role),
			Content: e.Content,
			Failed:  e.Failed,
		}
		for _, s := range e.Sources {
			m.Sources = append(m.Sources, backend.Source{
				MessageID: s.MessageID,
				Subject:   s.Subject,
				FromAddr:  s.FromAddr,
				Date:      s.Date,
			})
		}
		msgs = append(msgs, m)
	}
	return msgs
}
