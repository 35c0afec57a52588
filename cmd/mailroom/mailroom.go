// Package mailroomcmder
package mailroomcmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/mailroom/cmd/mailroom/ask"
	chatcmder "github.com/papercomputeco/mailroom/cmd/mailroom/chat"
	configcmder "github.com/papercomputeco/mailroom/cmd/mailroom/config"
	connectcmder "github.com/papercomputeco/mailroom/cmd/mailroom/connect"
	evalcmder "github.com/papercomputeco/mailroom/cmd/mailroom/eval"
	servecmder "github.com/papercomputeco/mailroom/cmd/mailroom/serve"
	statuscmder "github.com/papercomputeco/mailroom/cmd/mailroom/status"
	synccmder "github.com/papercomputeco/mailroom/cmd/mailroom/sync"
	versioncmder "github.com/papercomputeco/mailroom/cmd/version"
	"github.com/papercomputeco/mailroom/pkg/config"
)

const mailroomLongDesc string = `Mailroom is a terminal client for your email assistant.

Connect a mailbox, sync it, then ask questions about your email and get
streamed answers with the messages they came from:
  mailroom connect         Connect an email account
  mailroom sync            Sync and index the latest messages
  mailroom ask <question>  Ask one question
  mailroom chat            Start an interactive chat
  mailroom serve mock      Run a local stand-in backend`

const mailroomShortDesc string = "Mailroom - chat with your email"

func NewMailroomCmd() *cobra.Command {
	var backendTarget string

	cmd := &cobra.Command{
		Use:           "mailroom",
		Short:         mailroomShortDesc,
		Long:          mailroomLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .mailroom/ config directory")
	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagBackend, &backendTarget)

	// Add subcommands
	cmd.AddCommand(connectcmder.NewConnectCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(synccmder.NewSyncCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(evalcmder.NewEvalCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
