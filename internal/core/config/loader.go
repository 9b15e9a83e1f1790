package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Sui.RPCURL == "" {
		cfg.Sui.RPCURL = "https://fullnode.testnet.sui.io:443"
	}
	if cfg.Sui.Module == "" {
		cfg.Sui.Module = "ad_market"
	}
	if cfg.Sui.Network == "" {
		cfg.Sui.Network = "testnet"
	}
	if cfg.Sui.PollInterval == 0 {
		cfg.Sui.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Sui.RetryInterval == 0 {
		cfg.Sui.RetryInterval = Duration(3 * time.Second)
	}
	if cfg.Sui.BatchSize == 0 {
		cfg.Sui.BatchSize = 50
	}
	if cfg.Views.Path == "" {
		cfg.Views.Path = "data/views.log"
	}

	return &cfg, nil
}
