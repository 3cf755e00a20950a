package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds server settings loaded from an optional YAML file with
// environment overrides.
type Config struct {
	Port       int    `yaml:"port"`
	DBPath     string `yaml:"db_path"`
	OfficeName string `yaml:"office_name"`
	OfficeHead string `yaml:"office_head"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:       9000,
		DBPath:     "procuro.db",
		OfficeName: "Procurement Office",
		OfficeHead: "",
	}
}

// Load reads configuration from path (if it exists) on top of the
// defaults, then applies environment overrides. A missing file is not an
// error; a malformed file is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PROCURO_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}
	if v := os.Getenv("PROCURO_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PROCURO_OFFICE_NAME"); v != "" {
		cfg.OfficeName = v
	}
	if v := os.Getenv("PROCURO_OFFICE_HEAD"); v != "" {
		cfg.OfficeHead = v
	}
	return cfg, nil
}
