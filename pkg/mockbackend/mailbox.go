package mockbackend

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/papercomputeco/mailroom/pkg/backend"
)

// Email is one message of the canned mailbox.
type Email struct {
	MessageID string
	ThreadID  string
	Subject   string
	FromAddr  string
	Date      string
	Body      string
}

// chunkSize is the number of words per indexed chunk.
const chunkSize = 40

func defaultMailbox() []Email {
	return []Email{
		{
			MessageID: "msg-q4-forecast",
			ThreadID:  "thr-finance",
			Subject:   "Q4 forecast",
			FromAddr:  "dana@finance.example.com",
			Date:      "2024-10-03T09:15:00Z",
			Body:      "Hi all, the Q4 forecast is attached. Revenue is tracking 8% above plan and we expect the hiring freeze to lift in November. Please send budget adjustments by Friday.",
		},
		{
			MessageID: "msg-offsite",
			ThreadID:  "thr-offsite",
			Subject:   "Team offsite logistics",
			FromAddr:  "sam@ops.example.com",
			Date:      "2024-10-07T14:02:00Z",
			Body:      "The offsite is confirmed for October 24 at the lake house. A bus leaves the office at 8am. Reply with dietary restrictions before the 15th.",
		},
		{
			MessageID: "msg-invoice-2291",
			ThreadID:  "thr-vendor",
			Subject:   "Invoice 2291 overdue",
			FromAddr:  "billing@vendor.example.com",
			Date:      "2024-10-09T08:30:00Z",
			Body:      "Invoice 2291 for the September cloud hosting services is now 14 days overdue. The amount due is $4,120. Please arrange payment or contact us if there is a dispute.",
		},
		{
			MessageID: "msg-launch-review",
			ThreadID:  "thr-launch",
			Subject:   "Launch review notes",
			FromAddr:  "lee@product.example.com",
			Date:      "2024-10-11T16:45:00Z",
			Body:      "Notes from the launch review: the beta ships on November 4, docs need a final pass, and support wants a runbook for the new billing flow before launch.",
		},
		{
			MessageID: "msg-benefits",
			ThreadID:  "thr-hr",
			Subject:   "Open enrollment reminder",
			FromAddr:  "hr@people.example.com",
			Date:      "2024-10-14T10:00:00Z",
			Body:      "Open enrollment for health benefits closes on October 31. Review your plan choices in the benefits portal; no action is needed to keep your current plan.",
		},
	}
}

// chunks returns the number of index chunks the mailbox splits into.
func chunks(mailbox []Email) int {
	n := 0
	for _, e := range mailbox {
		words := len(strings.Fields(e.Body))
		n += (words + chunkSize - 1) / chunkSize
	}
	return n
}

// retrieve scores every email by question keyword overlap and returns the
// best topK as sources, highest score first.
func retrieve(mailbox []Email, question string, topK int) []backend.Source {
	terms := keywords(question)
	if len(terms) == 0 {
		return []backend.Source{}
	}

	type hit struct {
		email Email
		score float64
	}
	var hits []hit
	for _, e := range mailbox {
		doc := keywords(e.Subject + " " + e.Body + " " + e.FromAddr)
		matched := 0
		for t := range terms {
			if _, ok := doc[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, hit{email: e, score: float64(matched) / float64(len(terms))})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	sources := make([]backend.Source, 0, len(hits))
	for _, h := range hits {
		score := h.score
		chunk := 0
		sources = append(sources, backend.Source{
			MessageID:  h.email.MessageID,
			Subject:    h.email.Subject,
			FromAddr:   h.email.FromAddr,
			Date:       h.email.Date,
			ThreadID:   h.email.ThreadID,
			Snippet:    snippet(h.email.Body),
			ChunkIndex: &chunk,
			Score:      &score,
		})
	}
	return sources
}

// compose builds a deterministic answer from the retrieved sources.
func compose(question string, sources []backend.Source, mailbox []Email) string {
	if len(sources) == 0 {
		return "I couldn't find any emails related to that question."
	}

	byID := make(map[string]Email, len(mailbox))
	for _, e := range mailbox {
		byID[e.MessageID] = e
	}

	top := byID[sources[0].MessageID]
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the email \"%s\" from %s: %s", top.Subject, top.FromAddr, top.Body)
	if len(sources) > 1 {
		fmt.Fprintf(&b, "\n\n%d other emails may also be relevant.", len(sources)-1)
	}
	return b.String()
}

// tokenize splits an answer into word tokens, keeping the whitespace so the
// concatenation of all tokens is the answer.
func tokenize(answer string) []string {
	var tokens []string
	start := 0
	for i, r := range answer {
		if unicode.IsSpace(r) && i > start {
			tokens = append(tokens, answer[start:i])
			start = i
		}
	}
	if start < len(answer) {
		tokens = append(tokens, answer[start:])
	}
	return tokens
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "what": {},
	"who": {}, "when": {}, "did": {}, "do": {}, "does": {}, "about": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "for": {}, "and": {}, "or": {},
	"any": {}, "my": {}, "me": {}, "say": {}, "with": {}, "from": {}, "it": {},
}

func keywords(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, stop := stopwords[f]; stop || len(f) < 2 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func snippet(body string) string {
	const maxLen = 120
	r := []rune(body)
	if len(r) <= maxLen {
		return body
	}
	return string(r[:maxLen]) + "..."
}
