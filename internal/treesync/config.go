package treesync

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/HerbHall/treeline/internal/prtg"
	"github.com/HerbHall/treeline/internal/snow"
)

// Config holds the sync engine settings, including the two upstream
// client configurations.
type Config struct {
	Snow snow.Config `mapstructure:"snow"`
	Prtg prtg.Config `mapstructure:"prtg"`

	// MinDevices gates the structural grouping: sites with fewer
	// records get a flat tree under the site group.
	MinDevices int `mapstructure:"min_devices"`

	// Resume starts created objects active. Off by default so new
	// devices can be inspected before they alert.
	Resume bool `mapstructure:"resume"`

	// InternalLabel and ExternalLabel name the two top-level ownership
	// buckets under each site group.
	InternalLabel string `mapstructure:"internal_label"`
	ExternalLabel string `mapstructure:"external_label"`

	// Schedule is a cron expression for recurring all-site syncs.
	// Empty disables the scheduler.
	Schedule string `mapstructure:"schedule"`

	// Workers bounds concurrent site syncs during an all-site run.
	Workers int `mapstructure:"workers"`

	// RunRetention caps the number of stored run records.
	RunRetention int `mapstructure:"run_retention"`

	// FieldCheckPing enables the ICMP reachability probe during field
	// checks.
	FieldCheckPing bool `mapstructure:"fieldcheck_ping"`
}

// DefaultConfig returns the engine defaults. The upstream clients stay
// unconfigured, which leaves the module disabled until both are set.
func DefaultConfig() Config {
	return Config{
		Snow:          snow.DefaultConfig(),
		Prtg:          prtg.DefaultConfig(),
		MinDevices:    20,
		InternalLabel: "CC Infrastructure",
		ExternalLabel: "Customer Managed Infrastructure",
		Workers:       4,
		RunRetention:  500,
	}
}

// Configured reports whether both upstream connections are set.
func (c Config) Configured() bool {
	return (c.Snow.Instance != "" || c.Snow.URL != "") && c.Prtg.URL != ""
}

// Validate rejects malformed settings. Wholly absent upstream
// connections are not an error: they leave the module passive, with
// sync endpoints answering 503 while run history stays reachable.
func (c Config) Validate() error {
	if c.MinDevices < 0 {
		return fmt.Errorf("treesync: min_devices must not be negative, got %d", c.MinDevices)
	}
	if c.Workers < 1 {
		return fmt.Errorf("treesync: workers must be at least 1, got %d", c.Workers)
	}
	if c.Snow.Instance != "" || c.Snow.URL != "" {
		if err := c.Snow.Validate(); err != nil {
			return err
		}
	}
	if c.Prtg.URL != "" {
		if err := c.Prtg.Validate(); err != nil {
			return err
		}
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("treesync: invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}
