package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sqlchat configuration.
type Config struct {
	DBPath string      `yaml:"db_path"`
	Model  string      `yaml:"model"`
	Cache  CacheConfig `yaml:"cache"`
	Warm   WarmConfig  `yaml:"warm"`
}

// CacheConfig controls the query-result cache.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TTL            time.Duration `yaml:"ttl"`
	MaxSizeMB      int64         `yaml:"max_size_mb"`
	MaxEntrySizeMB int64         `yaml:"max_entry_size_mb"`
}

// MaxSizeBytes returns the aggregate cache cap in bytes.
func (c CacheConfig) MaxSizeBytes() int64 { return c.MaxSizeMB * 1024 * 1024 }

// MaxEntrySizeBytes returns the per-entry cap in bytes.
func (c CacheConfig) MaxEntrySizeBytes() int64 { return c.MaxEntrySizeMB * 1024 * 1024 }

// WarmConfig controls cache warming with suggested questions.
type WarmConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MaxQuestions int      `yaml:"max_questions"`
	Questions    []string `yaml:"questions"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "query_cache.db",
		Model:  "openai/gpt-4-turbo",
		Cache: CacheConfig{
			Enabled:        true,
			TTL:            24 * time.Hour,
			MaxSizeMB:      500,
			MaxEntrySizeMB: 10,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
