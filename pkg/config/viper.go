package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/stasishq/stasis/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STASIS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the command layer)
//  2. Environment variables (STASIS_API_LISTEN, STASIS_SERVER_BINARY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STASIS_SERVER_BINARY, STASIS_DUMPS_DIR, etc.
	v.SetEnvPrefix("STASIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// ConfigFromViper materializes a Config from the viper precedence chain.
// Commands that run services use this instead of reading config.toml
// directly, so environment variables and bound flags apply.
func ConfigFromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			Binary:         v.GetString("server.binary"),
			Host:           v.GetString("server.host"),
			StartTimeoutMS: v.GetInt("server.start_timeout_ms"),
		},
		HTTP: HTTPConfig{
			HealthTimeoutMS: v.GetInt("http.health_timeout_ms"),
			ActionTimeoutMS: v.GetInt("http.action_timeout_ms"),
		},
		Dumps: DumpsConfig{
			Dir: v.GetString("dumps.dir"),
		},
		Models: ModelsConfig{
			Dir: v.GetString("models.dir"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Journal: JournalConfig{
			Path:    v.GetString("journal.path"),
			Enabled: v.GetBool("journal.enabled"),
		},
		MCP: MCPConfig{
			Enabled: v.GetBool("mcp.enabled"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.binary", d.Server.Binary)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.start_timeout_ms", d.Server.StartTimeoutMS)

	// HTTP control surface
	v.SetDefault("http.health_timeout_ms", d.HTTP.HealthTimeoutMS)
	v.SetDefault("http.action_timeout_ms", d.HTTP.ActionTimeoutMS)

	// Dumps and models
	v.SetDefault("dumps.dir", d.Dumps.Dir)
	v.SetDefault("models.dir", d.Models.Dir)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Journal
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("journal.enabled", d.Journal.Enabled)

	// MCP
	v.SetDefault("mcp.enabled", d.MCP.Enabled)
}
