package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. AISENTINEL_BASE_URL.
const EnvPrefix = "AISENTINEL_"

// Config is the client configuration stored at ~/.aisentinel/config.yaml.
type Config struct {
	BaseURL     string        `yaml:"base_url" json:"baseUrl"`
	RealtimeURL string        `yaml:"realtime_url,omitempty" json:"realtimeUrl,omitempty"`
	DataDir     string        `yaml:"data_dir" json:"dataDir"`
	CookieName  string        `yaml:"cookie_name,omitempty" json:"cookieName,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	LogLevel    string        `yaml:"log_level" json:"logLevel"`
}

func DefaultConfig() *Config {
	dataDir := ".aisentinel"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".aisentinel", "profile")
	}
	return &Config{
		BaseURL:  "http://localhost:8080",
		DataDir:  dataDir,
		Timeout:  10 * time.Second,
		LogLevel: "warn",
	}
}

// ConfigPath returns the default location of the configuration file.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".aisentinel", "config.yaml"), nil
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating the directory when needed.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from AISENTINEL_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "BASE_URL"); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvPrefix + "REALTIME_URL"); ok && v != "" {
		c.RealtimeURL = v
	}
	if v, ok := lookup(EnvPrefix + "DATA_DIR"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvPrefix + "COOKIE_NAME"); ok && v != "" {
		c.CookieName = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sTIMEOUT %q: %w", EnvPrefix, v, err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the values the session manager depends on.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}
