package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valentindosimont/ccem/internal/pricing"
)

type PathsConfig struct {
	ProjectsDir   string `yaml:"projects_dir"`
	DataDir       string `yaml:"data_dir"`
	BundledPrices string `yaml:"bundled_prices"`
}

type PricingConfig struct {
	URL            string `yaml:"url"`
	FetchTimeoutMs int    `yaml:"fetch_timeout_ms"`
	Offline        bool   `yaml:"offline"`
}

type UsageConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Timezone    string `yaml:"timezone"`
}

type MonitorConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
	DebounceMs     int `yaml:"debounce_ms"`
}

type HistoryConfig struct {
	DBPath string `yaml:"db_path"`
}

type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Pricing PricingConfig `yaml:"pricing"`
	Usage   UsageConfig   `yaml:"usage"`
	Monitor MonitorConfig `yaml:"monitor"`
	History HistoryConfig `yaml:"history"`
}

func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			ProjectsDir:   "~/.claude/projects",
			DataDir:       "~/.ccem",
			BundledPrices: bundledPricesPath(),
		},
		Pricing: PricingConfig{
			URL:            pricing.LiteLLMURL,
			FetchTimeoutMs: 1000,
		},
		Usage: UsageConfig{
			Concurrency: 5,
		},
		Monitor: MonitorConfig{
			PollIntervalMs: 5000,
			DebounceMs:     500,
		},
	}
}

// bundledPricesPath is model-prices.json next to the install directory.
func bundledPricesPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "..", "model-prices.json")
}

func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ccem", "config.yaml")
}

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

func (c *Config) ProjectsDir() string {
	return ExpandHome(c.Paths.ProjectsDir)
}

func (c *Config) DataDir() string {
	return ExpandHome(c.Paths.DataDir)
}

func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir(), "usage-cache.json")
}

func (c *Config) PricesPath() string {
	return filepath.Join(c.DataDir(), "model-prices.json")
}

func (c *Config) DBPath() string {
	if c.History.DBPath != "" {
		return ExpandHome(c.History.DBPath)
	}
	return filepath.Join(c.DataDir(), "history.db")
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pricing.FetchTimeoutMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMs) * time.Millisecond
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Monitor.DebounceMs) * time.Millisecond
}

// Location resolves usage.timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Usage.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Usage.Timezone)
}
