// Package config loads the compctl HCL configuration.
//
// Example:
//
//	user_id  = 0
//	su_path  = "su"
//	data_dir = "/data/local/tmp/compctl"
//
//	ifw {
//	  dir = "/data/system/ifw"
//	}
//
//	broker {
//	  rish_path = "/data/local/tmp/rish"
//	}
//
//	daemon {
//	  metrics_listen  = "127.0.0.1:9464"
//	  preference_poll = "5s"
//	  state_refresh   = "10m"
//	  packages        = ["com.example.app"]
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	// DefaultPath is read when no --config flag is given.
	DefaultPath = "/data/local/tmp/compctl/compctl.hcl"

	DefaultSuPath         = "su"
	DefaultRishPath       = "rish"
	DefaultMetricsListen  = "127.0.0.1:9464"
	DefaultPreferencePoll = 5 * time.Second
	DefaultStateRefresh   = 10 * time.Minute
)

// Config is the root configuration block.
type Config struct {
	UserID  int    `hcl:"user_id,optional" json:"user_id"`
	SuPath  string `hcl:"su_path,optional" json:"su_path"`
	DataDir string `hcl:"data_dir,optional" json:"data_dir,omitempty"`

	IFW    *IFWConfig    `hcl:"ifw,block" json:"ifw,omitempty"`
	Broker *BrokerConfig `hcl:"broker,block" json:"broker,omitempty"`
	Daemon *DaemonConfig `hcl:"daemon,block" json:"daemon,omitempty"`
}

// IFWConfig overrides rule directory detection.
type IFWConfig struct {
	Dir string `hcl:"dir,optional" json:"dir,omitempty"`
}

// BrokerConfig configures the Shizuku shell bridge.
type BrokerConfig struct {
	RishPath string `hcl:"rish_path,optional" json:"rish_path"`
}

// DaemonConfig configures the preference watcher.
type DaemonConfig struct {
	MetricsListen  string   `hcl:"metrics_listen,optional" json:"metrics_listen"`
	PreferencePoll string   `hcl:"preference_poll,optional" json:"preference_poll"`
	StateRefresh   string   `hcl:"state_refresh,optional" json:"state_refresh"`
	Packages       []string `hcl:"packages,optional" json:"packages,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse decodes HCL source. filename must end in .hcl.
func Parse(filename string, data []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that HCL types cannot express.
func (c *Config) Validate() error {
	if c.UserID < 0 {
		return fmt.Errorf("user_id must not be negative: %d", c.UserID)
	}
	if _, err := parseDuration("preference_poll", c.Daemon.PreferencePoll); err != nil {
		return err
	}
	if _, err := parseDuration("state_refresh", c.Daemon.StateRefresh); err != nil {
		return err
	}
	return nil
}

// PreferencePollInterval returns the daemon preference poll interval.
func (c *Config) PreferencePollInterval() time.Duration {
	d, err := parseDuration("preference_poll", c.Daemon.PreferencePoll)
	if err != nil {
		return DefaultPreferencePoll
	}
	return d
}

// StateRefreshInterval returns how often the daemon refreshes app state.
func (c *Config) StateRefreshInterval() time.Duration {
	d, err := parseDuration("state_refresh", c.Daemon.StateRefresh)
	if err != nil {
		return DefaultStateRefresh
	}
	return d
}

func (c *Config) applyDefaults() {
	if c.SuPath == "" {
		c.SuPath = DefaultSuPath
	}
	if c.IFW == nil {
		c.IFW = &IFWConfig{}
	}
	if c.Broker == nil {
		c.Broker = &BrokerConfig{}
	}
	if c.Broker.RishPath == "" {
		c.Broker.RishPath = DefaultRishPath
	}
	if c.Daemon == nil {
		c.Daemon = &DaemonConfig{}
	}
	if c.Daemon.MetricsListen == "" {
		c.Daemon.MetricsListen = DefaultMetricsListen
	}
	if c.Daemon.PreferencePoll == "" {
		c.Daemon.PreferencePoll = DefaultPreferencePoll.String()
	}
	if c.Daemon.StateRefresh == "" {
		c.Daemon.StateRefresh = DefaultStateRefresh.String()
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive: %s", field, value)
	}
	return d, nil
}
