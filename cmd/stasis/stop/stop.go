// Package stopcmder provides the stop command for terminating llama-server
// sessions.
package stopcmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/logger"
)

const stopLongDesc = `Stop a running llama-server session.

The server receives SIGTERM and a few seconds to exit before SIGKILL. The
session table is updated either way.

Examples:
  stasis stop llama-3
  stasis stop --all
`
const stopShortDesc = "Stop llama-server sessions"

type stopCommander struct {
	debug     bool
	configDir string
	all       bool
}

func NewStopCmd() *cobra.Command {
	cmder := &stopCommander{}

	cmd := &cobra.Command{
		Use:   "stop [model-id]",
		Short: stopShortDesc,
		Long:  stopLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			if !cmder.all && len(args) == 0 {
				return fmt.Errorf("provide a model id or --all")
			}

			modelID := ""
			if len(args) == 1 {
				modelID = args[0]
			}
			return cmder.run(cmd, modelID)
		},
	}

	cmd.Flags().BoolVar(&cmder.all, "all", false, "Stop every running session")

	return cmd
}

func (c *stopCommander) run(cmd *cobra.Command, modelID string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	if c.all {
		sessions, err := a.Registry.List()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No running sessions.")
			return nil
		}
		for i := range sessions {
			desc := sessions[i]
			err := cliui.Step(out, fmt.Sprintf("Stopping %s", cliui.NameStyle.Render(desc.ModelID)), func() error {
				return a.Launcher.Stop(cmd.Context(), &desc)
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	desc, err := a.Registry.FindByModel(modelID)
	if err != nil {
		return err
	}
	if desc == nil {
		return fmt.Errorf("no running session for model %q", modelID)
	}

	return cliui.Step(out, fmt.Sprintf("Stopping %s", cliui.NameStyle.Render(modelID)), func() error {
		return a.Launcher.Stop(cmd.Context(), desc)
	})
}
