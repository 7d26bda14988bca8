package config

// NewDefaultConfig returns a fully-populated Config with the stock defaults.
// Empty directory fields mean "resolve under the dot directory at use time";
// the dotdir package owns those locations.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Binary:         "llama-server",
			Host:           "127.0.0.1",
			StartTimeoutMS: 15000,
		},
		HTTP: HTTPConfig{
			HealthTimeoutMS: 2000,
			ActionTimeoutMS: 120000,
		},
		API: APIConfig{
			Listen: ":8091",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
