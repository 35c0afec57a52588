// Package servecmder provides the serve command with subcommands for running
// local services.
package servecmder

import (
	"github.com/spf13/cobra"

	mockcmder "github.com/papercomputeco/mailroom/cmd/mailroom/serve/mock"
)

const serveLongDesc string = `Run local mailroom services.

Use subcommands to run individual services:
  mailroom serve mock    Run a stand-in email assistant backend`

const serveShortDesc string = "Run local mailroom services"

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
	}

	cmd.AddCommand(mockcmder.NewMockCmd())

	return cmd
}
