// Package config loads broker process configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything a broker process needs to start. The first four
// fields are the exact keys spec.md §6 requires in the JSON config file;
// the rest are operational settings supplied alongside it or on the command
// line (port and raft-port are always supplied at startup, never read from
// the file, per spec.md §6).
type Config struct {
	Host         string `mapstructure:"host"`
	Token        string `mapstructure:"token"`
	ManagerHost  string `mapstructure:"server_host"`
	ManagerPort  string `mapstructure:"server_port"`

	DataDir string `mapstructure:"data_dir"`

	NotifierBrokers []string `mapstructure:"notifier_brokers"`
}

// Load reads the JSON config file at path. Unknown keys are ignored;
// missing optional keys keep their defaults ("./data" for data_dir, the
// zero value for everything else).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{DataDir: "./data"}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	return cfg, nil
}

// ManagerAddr returns the host:port the manager link dials.
func (c *Config) ManagerAddr() string {
	return fmt.Sprintf("%s:%s", c.ManagerHost, c.ManagerPort)
}
