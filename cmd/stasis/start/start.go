// Package startcmder provides the start command for launching llama-server
// sessions.
package startcmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/launch"
	"github.com/stasishq/stasis/pkg/logger"
	"github.com/stasishq/stasis/pkg/session"
)

const startLongDesc = `Launch a llama-server session for a model.

The server gets a free port, a generated API key, and a slot save path
pointing at the dump directory. Any existing session for the same model id
is replaced.

Extra llama-server arguments go after --arg, one value each:

Examples:
  stasis start llama-3 --model llama-3.gguf
  stasis start llava --model llava.gguf --mmproj mmproj.gguf
  stasis start llama-3 --model llama-3.gguf --arg --ctx-size --arg 8192
`
const startShortDesc = "Launch a llama-server session"

type startCommander struct {
	debug     bool
	configDir string

	modelPath  string
	mmprojPath string
	extraArgs  []string
}

func NewStartCmd() *cobra.Command {
	cmder := &startCommander{}

	cmd := &cobra.Command{
		Use:   "start <model-id>",
		Short: startShortDesc,
		Long:  startLongDesc,
		Args:  cobra.ExactArgs(1),
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

			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.modelPath, "model", "", "Model file, absolute or relative to models.dir")
	cmd.Flags().StringVar(&cmder.mmprojPath, "mmproj", "", "Multimodal projector file for vision models")
	cmd.Flags().StringArrayVar(&cmder.extraArgs, "arg", nil, "Extra llama-server argument (repeatable)")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func (c *startCommander) run(cmd *cobra.Command, modelID string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	spec := launch.Spec{
		ModelID:      modelID,
		Args:         c.extraArgs,
		ModelRelPath: &c.modelPath,
	}
	if c.mmprojPath != "" {
		spec.MMProjRelPath = &c.mmprojPath
	}

	out := cmd.OutOrStdout()

	var desc *session.Descriptor
	err = cliui.Step(out, fmt.Sprintf("Starting server for %s", cliui.NameStyle.Render(modelID)), func() error {
		var launchErr error
		desc, launchErr = a.Launcher.Launch(cmd.Context(), spec)
		return launchErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s  %s\n  %s  %d\n  %s  %d\n\n",
		cliui.KeyStyle.Render("model"), desc.ModelID,
		cliui.KeyStyle.Render("pid  "), desc.PID,
		cliui.KeyStyle.Render("port "), desc.Port,
	)
	return nil
}
