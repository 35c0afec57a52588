// Package askcmder provides the ask command: one question, one streamed
// answer, then the sources it was drawn from.
package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/config"
	"github.com/papercomputeco/mailroom/pkg/conversation"
)

const askLongDesc string = `Ask a single question about your email.

The answer is streamed to stdout token by token as the backend generates it,
followed by the emails it cites. The command exits non-zero when the answer
fails.

Generation parameters default to the backend's own defaults unless set by
flag, MAILROOM_CHAT_* environment variables, or config.toml.

Examples:
  mailroom ask "what did finance say about the Q4 forecast?"
  mailroom ask -k 3 -t 0.2 which invoices are overdue
  mailroom ask --no-stream "when is the offsite?"
  mailroom ask --dump-stream frames.txt "when is the offsite?"`

const askShortDesc string = "Ask a single question about your email"

type askCommander struct {
	topK        uint
	temperature float64
	maxTokens   uint
	timeout     time.Duration
	idleTimeout time.Duration
	noStream    bool
	dumpStream  string

	out    io.Writer
	logger *slog.Logger
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := clientcfg.Resolve(cmd, clientcfg.ChatFlags)
			if err != nil {
				return err
			}

			cmder.out = cmd.OutOrStdout()
			cmder.logger = clientcfg.NewLogger(cmd)
			client := clientcfg.NewClient(settings, cmder.logger)

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return backend.ErrEmptyQuestion
			}

			params := conversation.Params{
				TopK:        settings.TopK,
				Temperature: settings.Temperature,
				MaxTokens:   settings.MaxTokens,
			}

			if cmder.noStream {
				return cmder.runOnce(cmd.Context(), client, question, params)
			}
			return cmder.runStream(cmd.Context(), client, question, params)
		},
	}

	config.AddUintFlag(cmd, config.Flags, config.FlagTopK, &cmder.topK)
	config.AddFloat64Flag(cmd, config.Flags, config.FlagTemperature, &cmder.temperature)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddDurationFlag(cmd, config.Flags, config.FlagIdleTimeout, &cmder.idleTimeout)
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the complete answer instead of streaming it")
	cmd.Flags().StringVar(&cmder.dumpStream, "dump-stream", "", `Write the raw event stream to this file ("-" for stderr)`)

	return cmd
}

func (c *askCommander) runStream(ctx context.Context, client *backend.Client, question string, p conversation.Params) error {
	var streamOpts []backend.StreamOption
	if c.dumpStream != "" {
		dump, closeDump, err := openDump(c.dumpStream)
		if err != nil {
			return err
		}
		defer closeDump()
		streamOpts = append(streamOpts, backend.WithRawTee(dump))
	}

	ctl := conversation.NewController(
		conversation.New(),
		conversation.ClientOpener(client, streamOpts...),
		conversation.WithLogger(c.logger),
	)
	defer ctl.Close()

	printed := 0
	final, err := ctl.Ask(ctx, question, p, func(msg conversation.Message) {
		if msg.Failed {
			return
		}
		if len(msg.Content) > printed {
			fmt.Fprint(c.out, msg.Content[printed:])
			printed = len(msg.Content)
		}
	})
	if printed > 0 {
		fmt.Fprintln(c.out)
	}

	if err != nil {
		if errors.Is(err, conversation.ErrAborted) {
			return fmt.Errorf("answer interrupted")
		}
		if final.Content != "" {
			fmt.Fprintf(c.out, "%s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(final.Content))
		}
		return fmt.Errorf("answer failed: %w", err)
	}

	cliui.PrintSources(c.out, final.Sources)
	return nil
}

func (c *askCommander) runOnce(ctx context.Context, client *backend.Client, question string, p conversation.Params) error {
	resp, err := client.Chat(ctx, backend.ChatRequest{
		Question:    question,
		TopK:        p.TopK,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) {
			return fmt.Errorf("answer failed: %s", se.Reason())
		}
		return fmt.Errorf("answer failed: %w", err)
	}

	answer := resp.Answer
	if isTerminal(c.out) {
		if rendered, err := cliui.RenderMarkdown(answer); err == nil {
			answer = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintln(c.out, answer)

	cliui.PrintSources(c.out, resp.Sources)
	return nil
}

func openDump(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening stream dump: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
