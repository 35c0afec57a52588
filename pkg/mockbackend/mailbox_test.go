package mockbackend

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("mailbox", func() {
	mailbox := defaultMailbox()

	Describe("retrieve", func() {
		It("ranks the email matching the question first", func() {
			sources := retrieve(mailbox, "Which invoice is overdue?", 5)
			Expect(sources).NotTo(BeEmpty())
			Expect(sources[0].MessageID).To(Equal("msg-invoice-2291"))
			Expect(sources[0].Subject).To(Equal("Invoice 2291 overdue"))
			Expect(*sources[0].Score).To(BeNumerically(">", 0))
			Expect(sources[0].Snippet).NotTo(BeEmpty())
		})

		It("honors top_k", func() {
			Expect(len(retrieve(mailbox, "october", 2))).To(Equal(2))
		})

		It("returns an empty list when nothing matches", func() {
			sources := retrieve(mailbox, "zebra xylophone", 5)
			Expect(sources).NotTo(BeNil())
			Expect(sources).To(BeEmpty())
		})

		It("ignores stopwords", func() {
			Expect(retrieve(mailbox, "what is the", 5)).To(BeEmpty())
		})
	})

	Describe("compose", func() {
		It("cites the top email", func() {
			sources := retrieve(mailbox, "team offsite", 5)
			answer := compose("team offsite", sources, mailbox)
			Expect(answer).To(ContainSubstring("Team offsite logistics"))
			Expect(answer).To(ContainSubstring("lake house"))
		})

		It("says so when there are no sources", func() {
			Expect(compose("zebra", nil, mailbox)).To(ContainSubstring("couldn't find"))
		})
	})

	Describe("tokenize", func() {
		It("splits on words and keeps whitespace", func() {
			tokens := tokenize("Hello  there\nfriend")
			Expect(tokens).To(Equal([]string{"Hello", "  there", "\nfriend"}))
			Expect(strings.Join(tokens, "")).To(Equal("Hello  there\nfriend"))
		})

		It("handles empty input", func() {
			Expect(tokenize("")).To(BeEmpty())
		})
	})

	It("counts chunks per email", func() {
		Expect(chunks(mailbox)).To(Equal(len(mailbox)))
		long := Email{Body: strings.Repeat("word ", chunkSize+1)}
		Expect(chunks([]Email{long})).To(Equal(2))
	})
})
