package clientcfg_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	"github.com/papercomputeco/mailroom/pkg/config"
)

func newCmd(dir string) *cobra.Command {
	var (
		target      string
		timeout     time.Duration
		topK        uint
		temperature float64
		maxTokens   uint
		idle        time.Duration
	)
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().String("config-dir", dir, "")
	cmd.Flags().Bool("debug", false, "")
	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &target)
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &timeout)
	config.AddUintFlag(cmd, config.Flags, config.FlagTopK, &topK)
	config.AddFloat64Flag(cmd, config.Flags, config.FlagTemperature, &temperature)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTokens, &maxTokens)
	config.AddDurationFlag(cmd, config.Flags, config.FlagIdleTimeout, &idle)
	return cmd
}

var _ = Describe("Resolve", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "clientcfg-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("uses defaults when nothing is configured", func() {
		cmd := newCmd(tmpDir)
		Expect(cmd.ParseFlags(nil)).To(Succeed())

		s, err := clientcfg.Resolve(cmd, clientcfg.ChatFlags)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Target).To(Equal("http://localhost:8000"))
		Expect(s.Timeout).To(Equal(2 * time.Minute))
		Expect(s.IdleTimeout).To(Equal(60 * time.Second))
		Expect(s.TopK).To(BeNil())
		Expect(s.Temperature).To(BeNil())
		Expect(s.MaxTokens).To(BeNil())
	})

	It("prefers flags over the config file", func() {
		data := "[backend]\ntarget = \"http://from-file:8000\"\n\n[chat]\ntop_k = 3\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		cmd := newCmd(tmpDir)
		Expect(cmd.ParseFlags([]string{"--backend", "http://from-flag:9000", "-t", "0"})).To(Succeed())

		s, err := clientcfg.Resolve(cmd, clientcfg.ChatFlags)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Target).To(Equal("http://from-flag:9000"))
		Expect(*s.TopK).To(Equal(3))
		Expect(s.Temperature).NotTo(BeNil())
		Expect(*s.Temperature).To(Equal(0.0))
	})

	It("fails without a backend target", func() {
		cmd := newCmd(tmpDir)
		Expect(cmd.ParseFlags([]string{"--backend", ""})).To(Succeed())

		_, err := clientcfg.Resolve(cmd, clientcfg.ClientFlags)
		Expect(err).To(MatchError(ContainSubstring("no backend configured")))
	})

	It("builds a client for the target", func() {
		client := clientcfg.NewClient(config.Settings{Target: "http://example.com/"}, nil)
		Expect(client.BaseURL()).To(Equal("http://example.com"))
	})
})
