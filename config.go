package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/entro314-labs/drivepurge/internal/scan"
	"github.com/entro314-labs/drivepurge/internal/trash"
)

const appName = "drivepurge"

type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	PageSize     int    `json:"page_size"`
	MaxPages     int    `json:"max_pages"`
	BatchSize    int    `json:"batch_size"`
	Confirm      *bool  `json:"confirm"`
	LogLevel     string `json:"log_level"`
	LogFile      string `json:"log_file"`
	LogFormat    string `json:"log_format"`
	MetricsAddr  string `json:"metrics_addr"`
	Credentials  string `json:"credentials"`
}

func resolveConfigPath(explicit string) (string, bool, error) {
	if explicit != "" {
		if !fileExists(explicit) {
			return "", false, fmt.Errorf("config %s does not exist", explicit)
		}
		return explicit, true, nil
	}
	for _, candidate := range defaultConfigPaths() {
		if fileExists(candidate) {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func loadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfigPaths() []string {
	paths := []string{}
	if dir := configDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, "config.json"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "config.json"))
	}
	return paths
}

// configDir is where drivepurge keeps its files, or "" if no base directory
// can be determined.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", appName)
	}
	return ""
}

func defaultCredentialsPath() string {
	dir := configDir()
	if dir == "" {
		return "credentials.json"
	}
	return filepath.Join(dir, "credentials.json")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// normalizeConfig validates cfg and fills in defaults for zero values.
func normalizeConfig(cfg Config) (Config, error) {
	var err error
	if cfg.PageSize < 0 {
		err = multierr.Append(err, errors.New("config: page_size must be >= 0"))
	}
	if cfg.MaxPages < 0 {
		err = multierr.Append(err, errors.New("config: max_pages must be >= 0"))
	}
	if cfg.BatchSize < 0 {
		err = multierr.Append(err, errors.New("config: batch_size must be >= 0"))
	}
	switch cfg.LogFormat {
	case "", "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("config: unknown log_format %q", cfg.LogFormat))
	}
	if err != nil {
		return Config{}, err
	}

	if cfg.PageSize == 0 {
		cfg.PageSize = scan.DefaultPageSize
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = scan.DefaultMaxPages
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = trash.DefaultBatchSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Credentials == "" {
		cfg.Credentials = defaultCredentialsPath()
	}
	return cfg, nil
}

func (c Config) confirmDeletes() bool {
	if c.Confirm == nil {
		return true
	}
	return *c.Confirm
}
