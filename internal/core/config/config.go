package config

import (
	"fmt"
	"time"

	redisclient "github.com/aquads/indexer/internal/infra/redis"
	"github.com/aquads/indexer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Sui      SuiConfig          `yaml:"sui"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Views    ViewsConfig        `yaml:"views"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Duration parses yaml values like "2s" or "720h"; bare numbers are taken as
// seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SuiConfig holds the event-stream source settings.
type SuiConfig struct {
	RPCURL    string `yaml:"rpc_url"`
	PackageID string `yaml:"package_id"`
	Module    string `yaml:"module"`
	Network   string `yaml:"network"`

	PollInterval  Duration `yaml:"poll_interval"`
	RetryInterval Duration `yaml:"retry_interval"`
	BatchSize     int      `yaml:"batch_size"`
}

// StreamID identifies the cursor row for this package+module event stream.
func (c SuiConfig) StreamID() string {
	return c.PackageID + "::" + c.Module
}

// ViewsConfig holds the viewability log settings.
type ViewsConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"` // 0 = infinite
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
