package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Server  Server  `yaml:"server"`
	Output  Output  `yaml:"output"`
	Logging Logging `yaml:"logging"`
	Search  Search  `yaml:"search"`
	Quiz    Quiz    `yaml:"quiz"`
	Index   Index   `yaml:"index"`
	Redis   Redis   `yaml:"redis"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"`
}

type Search struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type Quiz struct {
	RecentWindow int    `yaml:"recent_window"`
	DailyLimit   int    `yaml:"daily_limit"`
	Timezone     string `yaml:"timezone"`
	DefaultMode  string `yaml:"default_mode"`
}

type Index struct {
	SiteURL             string   `yaml:"site_url"`
	Feeds               []Feed   `yaml:"feeds"`
	Featured            []string `yaml:"featured"`
	FetchTimeoutSeconds int      `yaml:"fetch_timeout_seconds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Redis struct {
	Enabled            bool   `yaml:"enabled"`
	Addr               string `yaml:"addr"`
	Password           string `yaml:"password"`
	DB                 int    `yaml:"db"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// ConfigDir returns the XDG config directory for siteassist.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "siteassist")
}

// DataDir returns the XDG data directory for siteassist.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "siteassist")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/siteassist/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'siteassist init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info", Mode: "dev"},
		Search:  Search{DefaultLimit: 3, MaxLimit: 20},
		Quiz: Quiz{
			RecentWindow: 30,
			DailyLimit:   10,
			Timezone:     "Asia/Tokyo",
			DefaultMode:  "quick",
		},
		Index: Index{FetchTimeoutSeconds: 15},
		Redis: Redis{Addr: "localhost:6379", RateLimitPerMinute: 100},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Quiz.Timezone); err != nil {
		return nil, fmt.Errorf("invalid quiz.timezone %q: %w", cfg.Quiz.Timezone, err)
	}
	if cfg.Quiz.RecentWindow < 1 {
		return nil, fmt.Errorf("quiz.recent_window must be at least 1, got %d", cfg.Quiz.RecentWindow)
	}
	if cfg.Search.DefaultLimit < 1 {
		cfg.Search.DefaultLimit = 3
	}
	if cfg.Search.MaxLimit < cfg.Search.DefaultLimit {
		cfg.Search.MaxLimit = cfg.Search.DefaultLimit
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// Location returns the reference timezone used for quiz calendar days.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Quiz.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FetchTimeout returns the per-page timeout for the feed indexer.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Index.FetchTimeoutSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
