// Package statuscmder provides the status command for inspecting running
// sessions and recent slot actions.
package statuscmder

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/logger"
)

const statusLongDesc = `Show running llama-server sessions.

Dead sessions are pruned from the table as a side effect of listing, so
what you see is what is actually running.

With --history the most recent slot actions from the journal are shown
underneath.

Examples:
  stasis status
  stasis status --history
`
const statusShortDesc = "Show running sessions"

type statusCommander struct {
	debug     bool
	configDir string
	history   bool
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
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

	cmd.Flags().BoolVar(&cmder.history, "history", false, "Show recent slot actions from the journal")

	return cmd
}

func (c *statusCommander) run(cmd *cobra.Command) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	sessions, err := a.Registry.List()
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No running sessions.")
	} else {
		fmt.Fprintln(out)
		for _, sess := range sessions {
			fmt.Fprintf(out, "  %s %s  %s\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(sess.ModelID),
				cliui.DimStyle.Render(fmt.Sprintf("pid %d, port %d, up %s",
					sess.PID, sess.Port, cliui.FormatDuration(time.Since(sess.StartedAt)))),
			)
		}
		fmt.Fprintln(out)
	}

	if !c.history {
		return nil
	}

	if a.Journal == nil {
		fmt.Fprintln(out, cliui.DimStyle.Render("Journal is disabled."))
		return nil
	}

	entries, err := a.Journal.Recent(cmd.Context(), 20)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, cliui.DimStyle.Render("No slot actions recorded yet."))
		return nil
	}

	fmt.Fprintf(out, "  %s\n", cliui.KeyStyle.Render("Recent slot actions"))
	for _, entry := range entries {
		mark := cliui.SuccessMark
		detail := fmt.Sprintf("status %d", entry.StatusCode)
		if !entry.Succeeded() {
			mark = cliui.FailMark
			detail = entry.Error
		}
		fmt.Fprintf(out, "  %s %-7s %s/%s  %s\n",
			mark,
			entry.Action,
			entry.ModelID,
			cliui.NameStyle.Render(entry.DumpName),
			cliui.DimStyle.Render(fmt.Sprintf("%s, %s",
				entry.RecordedAt.Local().Format("2006-01-02 15:04:05"), detail)),
		)
	}
	fmt.Fprintln(out)

	return nil
}
