// Package connectcmder provides the connect command, which links an email
// account to the backend through its OAuth redirect.
package connectcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/config"
)

const connectLongDesc string = `Connect an email account to the assistant backend.

If an account is already connected, its details are shown. Otherwise the
backend issues an authorization URL: open it in a browser and approve
access, then run "mailroom connect" again to confirm.

Examples:
  mailroom connect
  mailroom connect --open`

const connectShortDesc string = "Connect an email account"

// OpenURL opens an authorization URL. Replaced in tests.
var OpenURL = browser.OpenURL

type connectCommander struct {
	open    bool
	timeout time.Duration

	out    io.Writer
	logger *slog.Logger
}

func NewConnectCmd() *cobra.Command {
	cmder := &connectCommander{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: connectShortDesc,
		Long:  connectLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := clientcfg.Resolve(cmd, clientcfg.ClientFlags)
			if err != nil {
				return err
			}

			cmder.out = cmd.OutOrStdout()
			cmder.logger = clientcfg.NewLogger(cmd)
			client := clientcfg.NewClient(settings, cmder.logger)
			return cmder.run(cmd.Context(), client)
		},
	}

	cmd.Flags().BoolVar(&cmder.open, "open", false, "Open the authorization URL in a browser")
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)

	return cmd
}

func (c *connectCommander) run(ctx context.Context, client *backend.Client) error {
	account, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("checking account: %w", err)
	}

	if account != nil {
		fmt.Fprintf(c.out, "\n  %s Connected\n\n", cliui.SuccessMark)
		PrintAccount(c.out, account)
		fmt.Fprintln(c.out)
		return nil
	}

	auth, err := client.AuthURL(ctx)
	if err != nil {
		return fmt.Errorf("requesting authorization URL: %w", err)
	}

	fmt.Fprintf(c.out, "\n  %s No account connected.\n\n", cliui.DimStyle.Render("●"))
	fmt.Fprintf(c.out, "  %s\n  %s\n\n",
		cliui.KeyStyle.Render("Open this URL to connect your mailbox:"),
		auth.URL,
	)

	if c.open {
		if err := OpenURL(auth.URL); err != nil {
			c.logger.Warn("could not open browser", "error", err)
		} else {
			fmt.Fprintf(c.out, "  %s Opened in your browser\n\n", cliui.SuccessMark)
		}
	}

	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Run \"mailroom connect\" again once you have approved access."))
	return nil
}

// PrintAccount writes the account card.
func PrintAccount(w io.Writer, a *backend.Account) {
	row := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-9s", key+":")), cliui.NameStyle.Render(value))
	}
	row("Email", a.Email)
	row("Provider", a.Provider)
	row("ID", string(a.ID))
	row("Grant", a.NylasGrantID)
	row("Since", a.CreatedAt)
}
