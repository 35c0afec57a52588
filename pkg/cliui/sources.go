package cliui

import (
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/mailroom/pkg/backend"
)

const chipSeparator = " • "

// SourceLabel is the plain text of a source chip: subject • date • message_id.
// Missing parts are left out.
func SourceLabel(s backend.Source) string {
	subject := strings.TrimSpace(s.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	parts := []string{subject}
	if date := SourceDate(s); date != "" {
		parts = append(parts, date)
	}
	if s.MessageID != "" {
		parts = append(parts, s.MessageID)
	}
	return strings.Join(parts, chipSeparator)
}

// SourceDate formats the source date for display, falling back to the raw
// backend value when it cannot be parsed.
func SourceDate(s backend.Source) string {
	if t, ok := s.ParsedDate(); ok {
		return t.Format("Jan 2, 2006")
	}
	return strings.TrimSpace(s.Date)
}

// SourceChip renders a source as a styled chip.
func SourceChip(s backend.Source) string {
	return ChipStyle.Render(SourceLabel(s))
}

// PrintSources writes a numbered source list under a "Sources" heading.
// Nothing is written for an empty list.
func PrintSources(w io.Writer, sources []backend.Source) {
	if len(sources) == 0 {
		return
	}

	fmt.Fprintf(w, "\n  %s\n", KeyStyle.Render("Sources"))
	for i, s := range sources {
		fmt.Fprintf(w, "  %s %s\n", DimStyle.Render(fmt.Sprintf("%d.", i+1)), SourceChip(s))
		if s.FromAddr != "" {
			fmt.Fprintf(w, "     %s\n", DimStyle.Render(s.FromAddr))
		}
	}
}
