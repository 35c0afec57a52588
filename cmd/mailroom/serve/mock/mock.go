// Package mockcmder provides the cobra command that runs the mock backend.
package mockcmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/pkg/config"
	"github.com/papercomputeco/mailroom/pkg/logger"
	"github.com/papercomputeco/mailroom/pkg/mockbackend"
)

const mockLongDesc string = `Run a stand-in email assistant backend.

The mock serves every endpoint mailroom uses, answering from a small canned
mailbox so the client can be developed without the real backend. Its OAuth
URL points back at the mock itself; opening it connects a demo account.

Questions containing these markers make the answer stream misbehave:
  #error      end with a backend error event
  #malformed  include a frame that is not valid JSON
  #eof        drop the connection before the done event
  #stall      stop sending and hold the connection open

Examples:
  mailroom serve mock
  mailroom serve mock --listen :9000 --connected --synced
  mailroom serve mock --token-delay 80ms
  mailroom serve mock --log-file requests.jsonl`

const mockShortDesc string = "Run a stand-in email assistant backend"

type mockCommander struct {
	listen     string
	connected  bool
	synced     bool
	tokenDelay time.Duration
	debug      bool
	json       bool
	logFile    string

	logger *slog.Logger
}

func NewMockCmd() *cobra.Command {
	cmder := &mockCommander{}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: mockShortDesc,
		Long:  mockLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagMockListen})
			cmder.listen = v.GetString("mock.listen")

			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagMockListen, &cmder.listen)
	cmd.Flags().BoolVar(&cmder.connected, "connected", false, "Start with a demo account already connected")
	cmd.Flags().BoolVar(&cmder.synced, "synced", false, "Start with the mailbox already synced")
	cmd.Flags().DurationVar(&cmder.tokenDelay, "token-delay", 40*time.Millisecond, "Pause between streamed answer tokens")
	cmd.Flags().BoolVar(&cmder.json, "json-logs", false, "Write structured JSON logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON request logs to this file")

	return cmd
}

func (c *mockCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.json),
		logger.WithJSON(c.json),
	)

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithDebug(true),
			logger.WithJSON(true),
			logger.WithWriter(f),
		))
	}

	server := mockbackend.NewServer(mockbackend.Config{
		ListenAddr: c.listen,
		Connected:  c.connected,
		Synced:     c.synced,
		TokenDelay: c.tokenDelay,
	}, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("mock backend error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down mock backend")
		return server.Shutdown()
	}
}
