// Package showcmder provides the show command for rendering a stored
// conversation dump.
package showcmder

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/logger"
)

const showLongDesc = `Show a stored conversation dump.

The transcript is rendered as markdown for the terminal. With --raw the
dump document is printed as JSON instead.

Examples:
  stasis show roadtrip-planning
  stasis show roadtrip-planning --raw
`
const showShortDesc = "Show a stored conversation dump"

type showCommander struct {
	debug     bool
	configDir string
	raw       bool
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: showShortDesc,
		Long:  showLongDesc,
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

	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the dump document as JSON")

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, name string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	doc, err := a.Store.Read(name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if c.raw {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding dump: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", name)
	fmt.Fprintf(&md, "**Model:** %s  \n**Saved:** %s  \n**Messages:** %d\n\n",
		doc.ModelID, cliui.FormatTimestamp(doc.Timestamp), len(doc.Messages))

	if doc.HasRuntimeContext() {
		fmt.Fprintf(&md, "**Launch args:** `%s`\n\n", strings.Join(doc.RuntimeContext.Args, " "))
	}

	for _, msg := range doc.Messages {
		fmt.Fprintf(&md, "## %s\n\n%s\n\n", msg.Role, msg.Content)
	}

	rendered, err := cliui.RenderMarkdown(md.String())
	if err != nil {
		// Fall back to the raw markdown when the terminal renderer fails.
		fmt.Fprintln(out, md.String())
		return nil
	}

	fmt.Fprint(out, rendered)
	return nil
}
