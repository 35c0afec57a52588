// Package configcmder provides the config command for managing persistent
// mailroom configuration stored in the .mailroom/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/config"
)

const configLongDesc string = `Manage persistent mailroom configuration.

Configuration is stored as config.toml in the .mailroom/ directory and
provides default values for command flags. CLI flags and MAILROOM_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  backend.target, backend.timeout,
  chat.top_k, chat.temperature, chat.max_tokens, chat.idle_timeout,
  mock.listen

Use subcommands to get, set, or list configuration values:
  mailroom config set <key> <value>    Set a configuration value
  mailroom config get <key>            Get a configuration value
  mailroom config list                 List all configuration values

Examples:
  mailroom config set backend.target https://assistant.example.com
  mailroom config set chat.top_k 8
  mailroom config set chat.temperature ""
  mailroom config get chat.idle_timeout
  mailroom config list`

const configShortDesc string = "Manage persistent mailroom configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validKeysCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
