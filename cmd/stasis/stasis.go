// Package stasiscmder assembles the root stasis command tree.
package stasiscmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/stasishq/stasis/cmd/stasis/config"
	listcmder "github.com/stasishq/stasis/cmd/stasis/list"
	logscmder "github.com/stasishq/stasis/cmd/stasis/logs"
	restorecmder "github.com/stasishq/stasis/cmd/stasis/restore"
	rmcmder "github.com/stasishq/stasis/cmd/stasis/rm"
	savecmder "github.com/stasishq/stasis/cmd/stasis/save"
	servecmder "github.com/stasishq/stasis/cmd/stasis/serve"
	showcmder "github.com/stasishq/stasis/cmd/stasis/show"
	startcmder "github.com/stasishq/stasis/cmd/stasis/start"
	statuscmder "github.com/stasishq/stasis/cmd/stasis/status"
	stopcmder "github.com/stasishq/stasis/cmd/stasis/stop"
	versioncmder "github.com/stasishq/stasis/cmd/version"
)

const stasisLongDesc string = `Stasis freezes and thaws local llama.cpp conversations.

A save snapshots the server's KV cache together with the conversation
transcript; a restore brings both back, relaunching the server with the
recorded configuration if it has drifted.

Common workflows:
  stasis start <model> --model <file>   Launch a server for a model
  stasis save <model> <name>            Snapshot the current conversation
  stasis restore <model> <name>         Bring a snapshot back
  stasis serve                          Run the HTTP API for the chat UI`

const stasisShortDesc string = "Stasis - conversation state freezing for llama.cpp"

func NewStasisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stasis",
		Short: stasisShortDesc,
		Long:  stasisLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .stasis directory location")

	// Add subcommands
	cmd.AddCommand(startcmder.NewStartCmd())
	cmd.AddCommand(stopcmder.NewStopCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(savecmder.NewSaveCmd())
	cmd.AddCommand(restorecmder.NewRestoreCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(rmcmder.NewRmCmd())
	cmd.AddCommand(logscmder.NewLogsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
