// Package rmcmder provides the rm command for deleting stored conversation
// dumps.
package rmcmder

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/cliui"
	"github.com/stasishq/stasis/pkg/logger"
)

const rmLongDesc = `Delete a stored conversation dump.

Removes the dump document and its paired KV-cache blob. Deleting a dump
that does not exist is not an error.

Examples:
  stasis rm roadtrip-planning
  stasis rm roadtrip-planning --force
`
const rmShortDesc = "Delete a stored conversation dump"

type rmCommander struct {
	debug     bool
	configDir string
	force     bool
}

func NewRmCmd() *cobra.Command {
	cmder := &rmCommander{}

	cmd := &cobra.Command{
		Use:   "rm <name>",
		Short: rmShortDesc,
		Long:  rmLongDesc,
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

	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Delete without asking")

	return cmd
}

func (c *rmCommander) run(cmd *cobra.Command, name string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	if !c.force {
		fmt.Fprintf(out, "Delete %s and its KV-cache blob? [y/N] ", cliui.NameStyle.Render(name))

		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := a.Store.Delete(name); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Deleted %s\n", cliui.SuccessMark, cliui.NameStyle.Render(name))
	return nil
}
