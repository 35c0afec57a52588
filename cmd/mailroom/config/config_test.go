package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/mailroom/cmd/mailroom/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "mailroom-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .mailroom dir so the manager picks it up.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".mailroom"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		out.Reset()
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	Describe("set subcommand", func() {
		It("writes the config file", func() {
			Expect(run("set", "backend.target", "https://assistant.example.com")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".mailroom", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`target = "https://assistant.example.com"`))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects invalid values", func() {
			Expect(run("set", "backend.target", "ftp://nope")).To(HaveOccurred())
			Expect(run("set", "chat.temperature", "9")).To(HaveOccurred())
			Expect(run("set", "chat.idle_timeout", "soon")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "backend.target")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("returns a set value", func() {
			Expect(run("set", "chat.top_k", "7")).To(Succeed())
			out.Reset()

			Expect(run("get", "chat.top_k")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("7"))
		})

		It("shows the default when unset", func() {
			Expect(run("get", "backend.target")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("http://localhost:8000"))
		})

		It("marks optional values as not set", func() {
			Expect(run("get", "chat.temperature")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "nope")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(run("set", "mock.listen", ":9100")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			for _, key := range []string{
				"backend.target", "backend.timeout",
				"chat.top_k", "chat.temperature", "chat.max_tokens", "chat.idle_timeout",
				"mock.listen",
			} {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring(`":9100"`))
		})
	})
})
