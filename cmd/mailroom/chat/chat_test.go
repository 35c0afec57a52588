package chatcmder

import (
	"bytes"
	"net/http/httptest"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mailroom/pkg/dotdir"
	"github.com/papercomputeco/mailroom/pkg/mockbackend"
)

var _ = Describe("Chat command execution", func() {
	var (
		tmpDir string
		out    bytes.Buffer
		ts     *httptest.Server
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "mailroom-chat-test-*")
		Expect(err).NotTo(HaveOccurred())
		out.Reset()

		server := mockbackend.NewServer(mockbackend.Config{Connected: true, Synced: true}, nil)
		ts = httptest.NewServer(server.Handler())
	})

	AfterEach(func() {
		ts.Close()
		os.RemoveAll(tmpDir)
	})

	run := func(input string, args ...string) error {
		cmd := NewChatCmd()
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.Flags().Bool("debug", false, "")
		cmd.Flags().StringP("backend", "b", "", "")
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--backend", ts.URL}, args...))
		return cmd.Execute()
	}

	It("answers each line of input with sources", func() {
		Expect(run("which invoice is overdue?\n/exit\n")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("New conversation"))
		Expect(out.String()).To(ContainSubstring("Invoice 2291 overdue"))
		Expect(out.String()).To(ContainSubstring("msg-invoice-2291"))
	})

	It("keeps going after a failed answer", func() {
		Expect(run("offsite " + mockbackend.MarkerError + "\noffsite\n")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Sorry, I couldn't answer that"))
		Expect(out.String()).To(ContainSubstring("lake house"))
	})

	It("shows the sources of the last answer", func() {
		Expect(run("offsite\n/sources\n")).To(Succeed())
		Expect(strings.Count(out.String(), "msg-offsite")).To(BeNumerically(">=", 2))
	})

	It("saves the conversation and resumes it", func() {
		Expect(run("offsite\n")).To(Succeed())

		saved, err := dotdir.NewManager().LoadTranscript(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved).NotTo(BeNil())
		Expect(saved.Backend).To(Equal(ts.URL))
		Expect(saved.Entries).To(HaveLen(2))
		Expect(saved.Entries[0].Role).To(Equal("user"))
		Expect(saved.Entries[0].Content).To(Equal("offsite"))
		Expect(saved.Entries[1].Sources).NotTo(BeEmpty())

		out.Reset()
		Expect(run("/exit\n", "--resume")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Resuming saved chat"))
		Expect(out.String()).To(ContainSubstring("(2 messages)"))
	})

	It("does not save an empty session", func() {
		Expect(run("/exit\n")).To(Succeed())
		saved, err := dotdir.NewManager().LoadTranscript(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved).To(BeNil())
	})

	It("clears the conversation", func() {
		Expect(run("offsite\n/clear\n")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Cleared"))

		saved, err := dotdir.NewManager().LoadTranscript(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved).To(BeNil())
	})
})
