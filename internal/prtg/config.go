package prtg

import (
	"errors"
	"strings"
	"time"
)

// Config holds the monitoring platform connection settings. Exactly one of
// the three credential modes must be configured: API token, username with
// passhash, or username with password.
type Config struct {
	URL      string `mapstructure:"url"` // base URL, e.g. "https://prtg.example.com"
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	Passhash string `mapstructure:"passhash"`
	Password string `mapstructure:"password"`

	// TemplateGroup and TemplateDevice are the clone sources for new
	// objects; the platform has no bare create call.
	TemplateGroup  int `mapstructure:"template_group"`
	TemplateDevice int `mapstructure:"template_device"`

	Timeout time.Duration `mapstructure:"timeout"` // per-request HTTP timeout (default: 30s)
	Retries int           `mapstructure:"retries"` // retry budget for transient failures (default: 3)
	Backoff time.Duration `mapstructure:"backoff"` // initial retry delay, doubled per attempt (default: 500ms)

	// VisibilityTimeout bounds how long to wait for a freshly cloned
	// object to turn up in table queries (default: 30s).
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

// DefaultConfig returns a Config with sensible defaults. URL and
// credentials are empty, meaning the module is disabled until configured.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		Retries:           3,
		Backoff:           500 * time.Millisecond,
		VisibilityTimeout: 30 * time.Second,
	}
}

// Validate checks that the config is complete enough to build a client.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("prtg: url is required")
	}
	modes := 0
	if c.Token != "" {
		modes++
	}
	if c.Username != "" && c.Passhash != "" {
		modes++
	}
	if c.Username != "" && c.Password != "" {
		modes++
	}
	switch modes {
	case 0:
		return errors.New("prtg: credentials required, one of: token, username+passhash, username+password")
	case 1:
		return nil
	default:
		return errors.New("prtg: multiple credential modes configured, choose exactly one")
	}
}

// BaseURL returns the configured URL without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimRight(c.URL, "/")
}
