package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent stasis configuration stored as config.toml
// in the .stasis/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Server  ServerConfig  `toml:"server"`
	HTTP    HTTPConfig    `toml:"http"`
	Dumps   DumpsConfig   `toml:"dumps"`
	Models  ModelsConfig  `toml:"models"`
	API     APIConfig     `toml:"api"`
	Journal JournalConfig `toml:"journal"`
	MCP     MCPConfig     `toml:"mcp"`
}

// ServerConfig holds settings for launching llama-server processes.
type ServerConfig struct {
	// Binary is the llama-server executable name or path.
	Binary string `toml:"binary,omitempty"`

	// Host is the interface spawned servers bind to. Sessions are always
	// local; anything other than loopback is unusual.
	Host string `toml:"host,omitempty"`

	// StartTimeoutMS bounds how long a freshly spawned server may take to
	// answer its first health probe before the launch is abandoned.
	StartTimeoutMS int `toml:"start_timeout_ms,omitempty"`
}

// HTTPConfig holds timeouts for the server control surface.
type HTTPConfig struct {
	// HealthTimeoutMS is the per-request timeout for GET /health probes.
	HealthTimeoutMS int `toml:"health_timeout_ms,omitempty"`

	// ActionTimeoutMS is the per-request timeout for slot save/restore
	// actions. Slot files can be multiple gigabytes, so this is generous.
	ActionTimeoutMS int `toml:"action_timeout_ms,omitempty"`
}

// DumpsConfig holds conversation dump storage settings.
type DumpsConfig struct {
	// Dir overrides the default <dotdir>/llamacpp/dumps location.
	Dir string `toml:"dir,omitempty"`
}

// ModelsConfig holds model file resolution settings.
type ModelsConfig struct {
	// Dir is the base directory that relative model paths in dumps and
	// launch specs resolve against.
	Dir string `toml:"dir,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// JournalConfig holds slot-action journal settings.
type JournalConfig struct {
	// Path overrides the default <dotdir>/journal.sqlite location.
	// An empty path with Enabled false disables journaling entirely.
	Path string `toml:"path,omitempty"`

	// Enabled is serialized without omitempty so an explicit false
	// survives a config round-trip; both keys default to true.
	Enabled bool `toml:"enabled"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.binary": {
		get: func(c *Config) string { return c.Server.Binary },
		set: func(c *Config, v string) error { c.Server.Binary = v; return nil },
	},
	"server.host": {
		get: func(c *Config) string { return c.Server.Host },
		set: func(c *Config, v string) error { c.Server.Host = v; return nil },
	},
	"server.start_timeout_ms": {
		get: func(c *Config) string { return formatMS(c.Server.StartTimeoutMS) },
		set: func(c *Config, v string) error {
			n, err := parseMS("server.start_timeout_ms", v)
			if err != nil {
				return err
			}
			c.Server.StartTimeoutMS = n
			return nil
		},
	},
	"http.health_timeout_ms": {
		get: func(c *Config) string { return formatMS(c.HTTP.HealthTimeoutMS) },
		set: func(c *Config, v string) error {
			n, err := parseMS("http.health_timeout_ms", v)
			if err != nil {
				return err
			}
			c.HTTP.HealthTimeoutMS = n
			return nil
		},
	},
	"http.action_timeout_ms": {
		get: func(c *Config) string { return formatMS(c.HTTP.ActionTimeoutMS) },
		set: func(c *Config, v string) error {
			n, err := parseMS("http.action_timeout_ms", v)
			if err != nil {
				return err
			}
			c.HTTP.ActionTimeoutMS = n
			return nil
		},
	},
	"dumps.dir": {
		get: func(c *Config) string { return c.Dumps.Dir },
		set: func(c *Config, v string) error { c.Dumps.Dir = v; return nil },
	},
	"models.dir": {
		get: func(c *Config) string { return c.Models.Dir },
		set: func(c *Config, v string) error { c.Models.Dir = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"journal.path": {
		get: func(c *Config) string { return c.Journal.Path },
		set: func(c *Config, v string) error { c.Journal.Path = v; return nil },
	},
	"journal.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Journal.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for journal.enabled: %w", err)
			}
			c.Journal.Enabled = b
			return nil
		},
	},
	"mcp.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.MCP.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for mcp.enabled: %w", err)
			}
			c.MCP.Enabled = b
			return nil
		},
	},
}

func formatMS(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func parseMS(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid value for %s: %q", key, v)
	}
	return n, nil
}
