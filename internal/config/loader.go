package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadAndValidate loads path, or starts from an empty config when path is
// empty, then applies defaults, environment overrides and validation.
func LoadAndValidate(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Relay.Addr = getEnv("RELAY_ADDR", c.Relay.Addr)
	if port := os.Getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(c.Relay.Addr)
		if err != nil {
			host = ""
		}
		c.Relay.Addr = net.JoinHostPort(host, port)
	}
	c.HTTP.Addr = getEnv("RELAY_HTTP_ADDR", c.HTTP.Addr)
	c.History.Path = getEnv("RELAY_HISTORY_DB", c.History.Path)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
