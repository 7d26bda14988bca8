// Package restorecmder provides the restore command for bringing a saved
// conversation and its KV cache back onto a server.
package restorecmder

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/logger"
	"github.com/stasishq/stasis/pkg/reconcile"
)

const restoreLongDesc = `Restore a saved conversation onto a server.

The dump's recorded launch configuration is compared against the running
server. On mismatch the server is relaunched with the recorded
configuration before the KV cache is restored into an idle slot. A
relaunch discards the server's current in-memory state, so it asks for
confirmation first unless --yes is given.

Examples:
  stasis restore llama-3 roadtrip-planning
  stasis restore llama-3 roadtrip-planning --yes
`
const restoreShortDesc = "Restore a saved conversation"

type restoreCommander struct {
	debug     bool
	configDir string
	yes       bool
}

func NewRestoreCmd() *cobra.Command {
	cmder := &restoreCommander{}

	cmd := &cobra.Command{
		Use:   "restore <model-id> <name>",
		Short: restoreShortDesc,
		Long:  restoreLongDesc,
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

	cmd.Flags().BoolVarP(&cmder.yes, "yes", "y", false, "Relaunch a drifted server without asking")

	return cmd
}

func (c *restoreCommander) run(cmd *cobra.Command, modelID, name string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	// Pre-flight the drift check so a relaunch never happens silently.
	doc, err := a.Store.Read(name)
	if err != nil {
		return err
	}

	if !doc.HasRuntimeContext() {
		fmt.Fprintf(out, "  %s %s\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render("dump has no recorded launch configuration; restoring against the running server as-is"),
		)
	} else if relaunch, reason := c.wouldRelaunch(a, modelID, doc); relaunch {
		fmt.Fprintf(out, "  %s %s\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render(reason),
		)
		if !c.yes {
			ok, err := confirm(cmd, "Relaunch the server with the recorded configuration?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}
	}

	var messages []dump.ChatMessage
	var report *reconcile.Report
	err = cliui.Step(out, fmt.Sprintf("Restoring %s", cliui.NameStyle.Render(name)), func() error {
		var restoreErr error
		messages, report, restoreErr = a.Reconciler.Restore(cmd.Context(), modelID, name)
		return restoreErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s messages restored into slot %d\n",
		cliui.ValueStyle.Render(fmt.Sprintf("%d", len(messages))),
		report.SlotID,
	)
	if report.Relaunched {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("server was relaunched to match the recorded configuration"))
	}
	fmt.Fprintln(out)

	return nil
}

// wouldRelaunch reports whether restoring this dump would start or restart
// the server, with a human-readable reason.
func (c *restoreCommander) wouldRelaunch(a *app.App, modelID string, doc *dump.Dump) (bool, string) {
	desc, err := a.Registry.FindByModel(modelID)
	if err != nil || desc == nil {
		return true, fmt.Sprintf("no running server for %s; one will be launched with the recorded configuration", modelID)
	}
	if !a.Launcher.Matches(desc, doc.RuntimeContext) {
		return true, "running server configuration differs from the dump; it will be relaunched"
	}
	return false, ""
}

// confirm asks a y/N question on the terminal. Non-interactive input
// refuses rather than guessing.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if ok && !term.IsTerminal(int(stdin.Fd())) {
		return false, fmt.Errorf("refusing to relaunch without a terminal; pass --yes to proceed")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s [y/N] ", question)

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
