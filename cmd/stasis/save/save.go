// Package savecmder provides the save command for snapshotting a
// conversation and its KV cache.
package savecmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/launch"
	"github.com/stasishq/stasis/pkg/logger"
)

const saveLongDesc = `Snapshot the current conversation of a running server.

The server's KV cache for slot 0 is saved first; only when that succeeds
is the dump document written. The session's launch configuration is
recorded in the dump so a later restore can detect and correct drift.

The transcript is a non-empty JSON array of {"role", "content"} objects,
read from --transcript or stdin with "-".

Examples:
  stasis save llama-3 roadtrip-planning --transcript transcript.json
  some-exporter | stasis save llama-3 roadtrip-planning --transcript -
`
const saveShortDesc = "Snapshot a conversation and its KV cache"

type saveCommander struct {
	debug      bool
	configDir  string
	transcript string
}

func NewSaveCmd() *cobra.Command {
	cmder := &saveCommander{}

	cmd := &cobra.Command{
		Use:   "save <model-id> <name>",
		Short: saveShortDesc,
		Long:  saveLongDesc,
		Args:  cobra.ExactArgs(2),
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

			return cmder.run(cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&cmder.transcript, "transcript", "t", "", "Transcript JSON file, or - for stdin")

	return cmd
}

func (c *saveCommander) run(cmd *cobra.Command, modelID, name string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	messages, err := c.readTranscript(cmd.InOrStdin())
	if err != nil {
		return err
	}

	desc, err := a.Registry.FindByModel(modelID)
	if err != nil {
		return err
	}

	doc := &dump.Dump{
		ModelID:  modelID,
		Messages: messages,
	}
	if desc != nil {
		doc.RuntimeContext = launch.CaptureRuntimeContext(desc, a.Config.Models.Dir)
	}

	out := cmd.OutOrStdout()
	err = cliui.Step(out, fmt.Sprintf("Saving %s", cliui.NameStyle.Render(name)), func() error {
		return a.Store.Save(cmd.Context(), name, doc)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s messages saved to %s\n\n",
		cliui.ValueStyle.Render(fmt.Sprintf("%d", len(messages))),
		cliui.DimStyle.Render(a.Store.Dir()),
	)
	return nil
}

// readTranscript parses the transcript file or stdin. A dump records a
// conversation, so an absent or empty transcript is an error rather than an
// empty dump.
func (c *saveCommander) readTranscript(stdin io.Reader) ([]dump.ChatMessage, error) {
	if c.transcript == "" {
		return nil, fmt.Errorf("a transcript is required; pass --transcript <file> or - for stdin")
	}

	var data []byte
	var err error
	if c.transcript == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(c.transcript)
	}
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var messages []dump.ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("transcript has no messages")
	}
	return messages, nil
}
