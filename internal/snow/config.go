package snow

import (
	"errors"
	"strings"
	"time"
)

// Config holds the CMDB connection settings.
type Config struct {
	Instance string        `mapstructure:"instance"` // instance name, e.g. "acme" for acme.service-now.com
	URL      string        `mapstructure:"url"`      // explicit base URL; overrides Instance (on-prem, testing)
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"` // per-request HTTP timeout (default: 30s)
	Retries  int           `mapstructure:"retries"` // retry budget for transient failures (default: 3)
	Backoff  time.Duration `mapstructure:"backoff"` // initial retry delay, doubled per attempt (default: 500ms)
}

// DefaultConfig returns a Config with sensible defaults. Instance and
// credentials are empty, meaning the module is disabled until configured.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Retries: 3,
		Backoff: 500 * time.Millisecond,
	}
}

// BaseURL derives the instance base URL.
func (c Config) BaseURL() string {
	if c.URL != "" {
		return strings.TrimRight(c.URL, "/")
	}
	return "https://" + c.Instance + ".service-now.com"
}

// Validate checks that the config is complete enough to build a client.
func (c Config) Validate() error {
	if c.Instance == "" && c.URL == "" {
		return errors.New("servicenow: instance or url is required")
	}
	if c.Username == "" || c.Password == "" {
		return errors.New("servicenow: username and password are required")
	}
	return nil
}
