// Package synccmder provides the sync command, which asks the backend to
// fetch and index the latest messages of the connected account.
package synccmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mailroom/cmd/mailroom/clientcfg"
	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/config"
)

const syncLongDesc string = `Sync and index the latest messages.

Asks the backend to fetch the newest messages of the connected account and
index them for retrieval. Indexing runs on the backend; this command waits
for it to finish and reports the counts.

Examples:
  mailroom sync
  mailroom sync --timeout 5m`

const syncShortDesc string = "Sync and index the latest messages"

type syncCommander struct {
	timeout time.Duration
}

func NewSyncCmd() *cobra.Command {
	cmder := &syncCommander{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: syncShortDesc,
		Long:  syncLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := clientcfg.Resolve(cmd, clientcfg.ClientFlags)
			if err != nil {
				return err
			}
			client := clientcfg.NewClient(settings, clientcfg.NewLogger(cmd))
			return runSync(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}

	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)

	return cmd
}

func runSync(ctx context.Context, w io.Writer, client *backend.Client) error {
	var res *backend.SyncResult

	fmt.Fprintln(w)
	err := cliui.Step(w, "Syncing latest messages", func() error {
		var err error
		res, err = client.SyncLatest(ctx)
		return err
	})
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) {
			return fmt.Errorf("sync failed: %s", se.Reason())
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Fprintf(w, "\n  Synced %s messages, indexed %s chunks\n\n",
		cliui.NameStyle.Render(fmt.Sprint(res.Synced)),
		cliui.NameStyle.Render(fmt.Sprint(res.IndexedChunks)),
	)
	return nil
}
