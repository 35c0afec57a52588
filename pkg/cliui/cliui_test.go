package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/cliui"
)

var _ = Describe("SourceLabel", func() {
	It("joins subject, date and message id", func() {
		s := backend.Source{MessageID: "msg-42", Subject: "Q4 forecast", Date: "2024-10-03T09:15:00Z"}
		Expect(cliui.SourceLabel(s)).To(Equal("Q4 forecast • Oct 3, 2024 • msg-42"))
	})

	It("keeps an unparseable date verbatim", func() {
		s := backend.Source{MessageID: "m1", Subject: "Hi", Date: "yesterday"}
		Expect(cliui.SourceLabel(s)).To(Equal("Hi • yesterday • m1"))
	})

	It("leaves out missing parts", func() {
		Expect(cliui.SourceLabel(backend.Source{MessageID: "m1"})).To(Equal("(no subject) • m1"))
	})
})

var _ = Describe("PrintSources", func() {
	It("writes nothing for no sources", func() {
		var buf bytes.Buffer
		cliui.PrintSources(&buf, nil)
		Expect(buf.Len()).To(BeZero())
	})

	It("numbers each source", func() {
		var buf bytes.Buffer
		cliui.PrintSources(&buf, []backend.Source{
			{MessageID: "m1", Subject: "Q4", FromAddr: "cfo@example.com"},
			{MessageID: "m2", Subject: "Budget"},
		})
		out := buf.String()
		Expect(out).To(ContainSubstring("Sources"))
		Expect(out).To(ContainSubstring("Q4 • m1"))
		Expect(out).To(ContainSubstring("Budget • m2"))
		Expect(out).To(ContainSubstring("cfo@example.com"))
	})
})

var _ = Describe("Step", func() {
	It("returns the error of the step", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "Syncing", func() error { return errors.New("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(ContainSubstring("Syncing"))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds otherwise", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})
