// Package statuscmder provides the status command for checking the backend
// and the connected account.
package statuscmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	connectcmder "github.com/papercomputeco/mailroom/cmd/mailroom/connect"
	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/config"
)

const statusLongDesc string = `Show backend health and the connected account.

Calls the backend health check, then reports which email account is
connected. Exits non-zero when the backend cannot be reached.

Examples:
  mailroom status
  mailroom status --backend http://localhost:8000`

const statusShortDesc string = "Show backend health and connected account"

type statusCommander struct {
	timeout time.Duration
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := clientcfg.Resolve(cmd, clientcfg.ClientFlags)
			if err != nil {
				return err
			}
			client := clientcfg.NewClient(settings, clientcfg.NewLogger(cmd))
			return runStatus(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}

	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)

	return cmd
}

func runStatus(ctx context.Context, w io.Writer, client *backend.Client) error {
	fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("Backend:"), cliui.NameStyle.Render(client.BaseURL()))

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Fprintf(w, "  %s %s\n\n", cliui.FailMark, cliui.ErrorStyle.Render("unreachable"))
		return fmt.Errorf("checking backend health: %w", err)
	}
	fmt.Fprintf(w, "  %s %s\n\n", cliui.SuccessMark, health.Status)

	account, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("checking account: %w", err)
	}
	if account == nil {
		fmt.Fprintf(w, "  %s No account connected. Run \"mailroom connect\".\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	connectcmder.PrintAccount(w, account)
	fmt.Fprintln(w)
	return nil
}
