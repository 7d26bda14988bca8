// Package listcmder provides the list command for enumerating stored
// conversation dumps.
package listcmder

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/logger"
	"github.com/stasishq/stasis/pkg/utils"
)

const listLongDesc = `List stored conversation dumps.

Listing is best-effort: unreadable or foreign files in the dump directory
are skipped, never fatal.

Examples:
  stasis list
`
const listShortDesc = "List stored conversation dumps"

type listCommander struct {
	debug     bool
	configDir string
}

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	return cmd
}

func (c *listCommander) run(cmd *cobra.Command) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	names := a.Store.List()
	if len(names) == 0 {
		fmt.Fprintln(out, "No dumps stored.")
		return nil
	}

	fmt.Fprintln(out)
	for _, name := range names {
		doc, err := a.Store.Read(name)
		if err != nil {
			fmt.Fprintf(out, "  %s %s  %s\n",
				cliui.WarnMark,
				cliui.NameStyle.Render(name),
				cliui.DimStyle.Render("unreadable"),
			)
			continue
		}

		fmt.Fprintf(out, "  %s  %s\n",
			cliui.NameStyle.Render(name),
			cliui.DimStyle.Render(fmt.Sprintf("%s, %d messages, %s",
				doc.ModelID, len(doc.Messages), cliui.FormatTimestamp(doc.Timestamp))),
		)
		if preview := transcriptPreview(doc.Messages); preview != "" {
			fmt.Fprintf(out, "    %s\n", cliui.DimStyle.Render(preview))
		}
	}
	fmt.Fprintln(out)

	return nil
}

// transcriptPreview gives one truncated line of the first message so dumps
// can be told apart without opening each one.
func transcriptPreview(messages []dump.ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	content := strings.Join(strings.Fields(messages[0].Content), " ")
	return utils.Truncate(content, 60)
}
