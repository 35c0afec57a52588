// Package chatcmder provides the chat command for an interactive
// conversation with the email assistant.
package chatcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/config"
	"github.com/papercomputeco/mailroom/pkg/conversation"
	"github.com/papercomputeco/mailroom/pkg/dotdir"
)

const chatLongDesc string = `Start an interactive chat about your email.

Each question is answered by the backend and streamed in as it is generated,
with the emails it cites listed under the answer. Asking a new question while
an answer is still streaming is refused; press Esc to abandon it first.

On a terminal the chat runs as a full screen interface. When input or output
is redirected, or with --plain, it falls back to a line prompt.

The conversation is saved to .mailroom/last_chat.json when the session ends.
Use --resume to continue from it.

Examples:
  mailroom chat
  mailroom chat --resume
  mailroom chat -k 3 --temperature 0.2
  echo "when is the offsite?" | mailroom chat`

const chatShortDesc string = "Interactive chat about your email"

type chatCommander struct {
	topK        uint
	temperature float64
	maxTokens   uint
	timeout     time.Duration
	idleTimeout time.Duration
	resume      bool
	plain       bool
	configDir   string

	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := clientcfg.Resolve(cmd, clientcfg.ChatFlags)
			if err != nil {
				return err
			}

			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.logger = clientcfg.NewLogger(cmd)

			client := clientcfg.NewClient(settings, cmder.logger)
			return cmder.run(cmd.Context(), client, settings)
		},
	}

	config.AddUintFlag(cmd, config.Flags, config.FlagTopK, &cmder.topK)
	config.AddFloat64Flag(cmd, config.Flags, config.FlagTemperature, &cmder.temperature)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddDurationFlag(cmd, config.Flags, config.FlagIdleTimeout, &cmder.idleTimeout)
	cmd.Flags().BoolVarP(&cmder.resume, "resume", "r", false, "Continue the last saved conversation")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use the line prompt even on a terminal")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, client *backend.Client, settings config.Settings) error {
	manager := dotdir.NewManager()

	conv := conversation.New()
	if c.resume {
		saved, err := manager.LoadTranscript(c.configDir)
		if err != nil {
			return fmt.Errorf("loading saved chat: %w", err)
		}
		if saved != nil {
			if err := conv.Restore(fromTranscript(saved)); err != nil {
				return err
			}
			if saved.Backend != "" && saved.Backend != client.BaseURL() {
				c.logger.Warn("saved chat came from a different backend", "saved", saved.Backend, "current", client.BaseURL())
			}
		}
	}

	ctl := conversation.NewController(conv, conversation.ClientOpener(client), conversation.WithLogger(c.logger))
	params := conversation.Params{
		TopK:        settings.TopK,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}

	var err error
	if c.useTUI() {
		err = runTUI(ctx, ctl, params, client.BaseURL())
	} else {
		err = newREPL(c.in, c.out, ctl, params).run(ctx)
	}
	_ = ctl.Close()

	if msgs := conv.Messages(); len(msgs) > 0 {
		if saveErr := manager.SaveTranscript(toTranscript(client.BaseURL(), msgs), c.configDir); saveErr != nil {
			c.logger.Warn("could not save chat", "error", saveErr)
		}
	}

	return err
}

func (c *chatCommander) useTUI() bool {
	if c.plain {
		return false
	}
	in, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false
	}
	out, ok := c.out.(*os.File)
	return ok && term.IsTerminal(int(out.Fd()))
}
