// Package logscmder provides the logs command for streaming a session's
// server log.
package logscmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/logger"
)

const logsLongDesc = `Stream the log of a running llama-server session.

Follows the session's log file, printing new output as the server writes
it. Stop with Ctrl-C.

Examples:
  stasis logs llama-3
`
const logsShortDesc = "Stream a session's server log"

type logsCommander struct {
	debug     bool
	configDir string
}

func NewLogsCmd() *cobra.Command {
	cmder := &logsCommander{}

	cmd := &cobra.Command{
		Use:   "logs <model-id>",
		Short: logsShortDesc,
		Long:  logsLongDesc,
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

	return cmd
}

func (c *logsCommander) run(cmd *cobra.Command, modelID string) error {
	zapLogger := logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = zapLogger.Sync() }()

	a, err := app.New(c.configDir, zapLogger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	desc, err := a.Registry.FindByModel(modelID)
	if err != nil {
		return err
	}
	if desc == nil {
		return fmt.Errorf("no running session for model %q", modelID)
	}
	if desc.LogPath == "" {
		return fmt.Errorf("session for model %q has no log file", modelID)
	}

	if _, err := os.Stat(desc.LogPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no logs found for model %q", modelID)
		}
		return fmt.Errorf("checking log file: %w", err)
	}

	return followLog(cmd.Context(), desc.LogPath, cmd.OutOrStdout())
}

// followLog streams the file from its current end, waking on filesystem
// events rather than polling.
func followLog(ctx context.Context, path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}

	if _, err := file.Seek(stat.Size(), io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	buf := make([]byte, 4096)
	readAvailable := func() error {
		for {
			n, err := file.Read(buf)
			if n > 0 {
				if _, writeErr := out.Write(buf[:n]); writeErr != nil {
					return writeErr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	}

	if err := readAvailable(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := readAvailable(); err != nil {
				return err
			}
		case err := <-watcher.Errors:
			return fmt.Errorf("log watcher error: %w", err)
		}
	}
}
