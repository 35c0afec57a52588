// Package clientcfg resolves the settings and backend client shared by the
// mailroom commands that talk to the backend.
package clientcfg

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/config"
	"github.com/papercomputeco/mailroom/pkg/logger"
)

// ClientFlags are the registry keys every backend command binds.
var ClientFlags = []string{config.FlagBackend, config.FlagTimeout}

// ChatFlags are the registry keys of commands that ask questions.
var ChatFlags = []string{
	config.FlagBackend,
	config.FlagTimeout,
	config.FlagTopK,
	config.FlagTemperature,
	config.FlagMaxTokens,
	config.FlagIdleTimeout,
}

// Resolve loads config.toml from --config-dir, binds the given registry
// flags and returns the resolved settings.
func Resolve(cmd *cobra.Command, registryKeys []string) (config.Settings, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return config.Settings{}, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, registryKeys)

	s := config.ResolveSettings(v)
	if s.Target == "" {
		return s, fmt.Errorf("no backend configured; pass --%s or run: mailroom config set backend.target <url>",
			config.Flags[config.FlagBackend].Name)
	}
	return s, nil
}

// NewClient builds a backend client from resolved settings.
func NewClient(s config.Settings, log *slog.Logger) *backend.Client {
	return backend.NewClient(s.Target,
		backend.WithTimeout(s.Timeout),
		backend.WithIdleTimeout(s.IdleTimeout),
		backend.WithLogger(log),
	)
}

// NewLogger returns the pretty stderr logger, at debug level when the
// global --debug flag is set.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(errWriter(cmd)),
	)
}

func errWriter(cmd *cobra.Command) io.Writer {
	if w := cmd.ErrOrStderr(); w != nil {
		return w
	}
	return os.Stderr
}
