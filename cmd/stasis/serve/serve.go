// Package servecmder provides the serve command running the HTTP API the
// chat UI talks to.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/api"
	"github.com/stasishq/stasis/api/mcp"
	"github.com/stasishq/stasis/pkg/app"
	"github.com/stasishq/stasis/pkg/config"
	"github.com/stasishq/stasis/pkg/logger"
)

const serveLongDesc = `Run the stasis API server.

The chat UI saves, restores, lists, and deletes conversation dumps over
this API. When MCP is enabled, read-only dump inspection tools are served
at /mcp for agent clients.

Examples:
  stasis serve
  stasis serve --listen :9000
  stasis serve --mcp=false`

const serveShortDesc = "Run the stasis API server"

type ServeCommander struct {
	listen     string
	mcpEnabled bool
	debug      bool
	configDir  string
	logger     *zap.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	flagSet := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
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

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, flagSet, []string{
				config.FlagAPIListen,
				config.FlagMCPEnabled,
			})
			cfg := config.ConfigFromViper(v)

			return cmder.run(cfg)
		},
	}

	config.AddStringFlag(cmd, flagSet, config.FlagAPIListen, &cmder.listen)
	config.AddBoolFlag(cmd, flagSet, config.FlagMCPEnabled, &cmder.mcpEnabled)

	return cmd
}

func (c *ServeCommander) run(cfg *config.Config) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	a, err := app.NewFromConfig(cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	apiConfig := api.Config{
		ListenAddr: cfg.API.Listen,
		ModelsDir:  cfg.Models.Dir,
	}

	if cfg.MCP.Enabled {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Store:  a.Store,
			Logger: c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCPHandler = mcpServer.Handler()
	}

	apiServer := api.NewServer(apiConfig, a.Store, a.Registry, a.Reconciler, journalReader(a), c.logger)
	defer func() { _ = apiServer.Shutdown() }()

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("api error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

// journalReader returns the journal as an api.JournalReader, keeping the
// typed-nil out of the interface when journaling is disabled.
func journalReader(a *app.App) api.JournalReader {
	if a.Journal == nil {
		return nil
	}
	return a.Journal
}
