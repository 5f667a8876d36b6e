package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"decylo/internal/domain"
	"decylo/internal/insights"
)

// FileName is the journal config file looked up in the workspace root.
const FileName = "decylo.yml"

// Config models decylo.yml.
type Config struct {
	Journal struct {
		Timezone string `yaml:"timezone"`
		Options  struct {
			Min int `yaml:"min"`
			Max int `yaml:"max"`
		} `yaml:"options"`
		Categories []domain.Category `yaml:"categories"`
	} `yaml:"journal"`
	Insights struct {
		GrowthWindowDays     int    `yaml:"growth_window_days"`
		TrendLookbackDays    int    `yaml:"trend_lookback_days"`
		MomentumLookbackDays int    `yaml:"momentum_lookback_days"`
		Locale               string `yaml:"locale"`
	} `yaml:"insights"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Journal.Timezone); err != nil {
		return fmt.Errorf("config.journal.timezone %q: %w", c.Journal.Timezone, err)
	}
	if c.Journal.Options.Min < 1 {
		return fmt.Errorf("config.journal.options.min must be at least 1")
	}
	if c.Journal.Options.Max < c.Journal.Options.Min {
		return fmt.Errorf("config.journal.options.max must be >= min")
	}
	if len(c.Journal.Categories) == 0 {
		return fmt.Errorf("config.journal.categories is required")
	}
	seen := map[domain.Category]bool{}
	for _, cat := range c.Journal.Categories {
		if !cat.Valid() {
			return fmt.Errorf("config.journal.categories has unknown category %q", cat)
		}
		if seen[cat] {
			return fmt.Errorf("config.journal.categories lists %q twice", cat)
		}
		seen[cat] = true
	}
	for name, v := range map[string]int{
		"growth_window_days":     c.Insights.GrowthWindowDays,
		"trend_lookback_days":    c.Insights.TrendLookbackDays,
		"momentum_lookback_days": c.Insights.MomentumLookbackDays,
	} {
		if v < 1 || v > 365 {
			return fmt.Errorf("config.insights.%s must be between 1 and 365", name)
		}
	}
	if _, err := language.Parse(c.Insights.Locale); err != nil {
		return fmt.Errorf("config.insights.locale %q: %w", c.Insights.Locale, err)
	}
	return nil
}

// Location returns the journal time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Journal.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowsCategory reports whether decisions may be filed under cat.
func (c *Config) AllowsCategory(cat domain.Category) bool {
	for _, allowed := range c.Journal.Categories {
		if allowed == cat {
			return true
		}
	}
	return false
}

// InsightSettings maps the insights section onto analytics lookbacks.
func (c *Config) InsightSettings() insights.Settings {
	return insights.Settings{
		GrowthWindowDays:     c.Insights.GrowthWindowDays,
		TrendLookbackDays:    c.Insights.TrendLookbackDays,
		MomentumLookbackDays: c.Insights.MomentumLookbackDays,
		Language:             language.Make(c.Insights.Locale),
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with decylo config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault loads decylo.yml when present and falls back to Default.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil || cfg != nil {
		return cfg, err
	}
	return Default(), nil
}

// GenerateDefault returns default config YAML for the given time zone.
func GenerateDefault(timezone string) string {
	if timezone == "" {
		timezone = "UTC"
	}
	return fmt.Sprintf(defaultTemplate, timezone)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("UTC"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const defaultTemplate = `journal:
  timezone: %s
  options:
    min: 2
    max: 6
  categories: [career, finance, health, relationships, learning, lifestyle, other]

insights:
  growth_window_days: 14
  trend_lookback_days: 7
  momentum_lookback_days: 14
  locale: en
`
