// Package configcmder provides the config command for managing persistent
// stasis configuration stored in the .stasis/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent stasis configuration.

Configuration is stored as config.toml in the .stasis/ directory and
provides default values for command flags. CLI flags always take
precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.binary, server.host, server.start_timeout_ms,
  http.health_timeout_ms, http.action_timeout_ms,
  dumps.dir, models.dir, api.listen,
  journal.path, journal.enabled, mcp.enabled

Use subcommands to get, set, or list configuration values:
  stasis config set <key> <value>    Set a configuration value
  stasis config get <key>            Get a configuration value
  stasis config list                 List all configuration values

Examples:
  stasis config set models.dir ~/models
  stasis config set server.binary /opt/llama.cpp/llama-server
  stasis config get api.listen
  stasis config list`

const configShortDesc string = "Manage persistent stasis configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
