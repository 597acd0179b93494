package server

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.read_only", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/treeline.db")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")

	// Plugin defaults
	v.SetDefault("plugins.sites.enabled", true)
	v.SetDefault("plugins.treesync.enabled", true)
	v.SetDefault("plugins.treesync.min_devices", 20)
	v.SetDefault("plugins.treesync.resume", false)
	v.SetDefault("plugins.treesync.internal_label", "CC Infrastructure")
	v.SetDefault("plugins.treesync.external_label", "Customer Managed Infrastructure")
	v.SetDefault("plugins.treesync.workers", 4)
	v.SetDefault("plugins.treesync.run_retention", 500)
	v.SetDefault("plugins.treesync.fieldcheck_ping", false)
	v.SetDefault("plugins.treesync.snow.timeout", "30s")
	v.SetDefault("plugins.treesync.snow.retries", 3)
	v.SetDefault("plugins.treesync.snow.backoff", "500ms")
	v.SetDefault("plugins.treesync.prtg.timeout", "30s")
	v.SetDefault("plugins.treesync.prtg.retries", 3)
	v.SetDefault("plugins.treesync.prtg.backoff", "500ms")
	v.SetDefault("plugins.treesync.prtg.visibility_timeout", "30s")
	v.SetDefault("plugins.report.enabled", true)
	v.SetDefault("plugins.report.timeout", "15s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("treeline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/treeline")
	}

	// Environment variable support: TL_SERVER_PORT=9090
	v.SetEnvPrefix("TL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
