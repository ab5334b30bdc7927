package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// profile is one named connection in the config file.
type profile struct {
	BaseURL     string   `yaml:"base_url"`
	Assistant   string   `yaml:"assistant"`
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
	Retry       *bool    `yaml:"retry"`
}

// fileConfig is the YAML config file:
//
//	default: local
//	profiles:
//	  local:
//	    base_url: http://localhost:8000
//	    assistant: console
//	    api_key: secret
type fileConfig struct {
	Default  string             `yaml:"default"`
	Profiles map[string]profile `yaml:"profiles"`
}

// environment holds the variables read in main(). Empty means unset.
type environment struct {
	APIKey    string
	BaseURL   string
	Assistant string
}

// overrides holds the connection flags. Zero values mean unset.
type overrides struct {
	Profile     string
	BaseURL     string
	Assistant   string
	APIKey      string
	Temperature *float64
	MaxTokens   *int
	NoRetry     bool
}

// settings is the resolved connection setup.
type settings struct {
	Profile     string
	BaseURL     string // "" = client default
	Assistant   string
	APIKey      string
	Temperature *float64
	MaxTokens   *int
	Retry       bool
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "relay", "config.yaml")
}

// readConfig loads the config file at path. A missing file is tolerated
// only when path was not given explicitly.
func readConfig(path string, explicit bool) (fileConfig, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return fileConfig{}, nil
	default:
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (fileConfig, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Default != "" {
		if _, ok := cfg.Profiles[cfg.Default]; !ok {
			return fileConfig{}, fmt.Errorf("parse config: default profile %q is not defined", cfg.Default)
		}
	}
	return cfg, nil
}

// resolveSettings merges flags, environment and the selected profile, in
// that order of precedence. Env vars are passed in as values; env is only
// read in main().
func resolveSettings(cfg fileConfig, flags overrides, env environment) (settings, error) {
	name := flags.Profile
	if name == "" {
		name = cfg.Default
	}
	var p profile
	if name != "" {
		var ok bool
		if p, ok = cfg.Profiles[name]; !ok {
			return settings{}, fmt.Errorf("unknown profile %q", name)
		}
	}

	s := settings{
		Profile:     name,
		BaseURL:     first(flags.BaseURL, env.BaseURL, p.BaseURL),
		Assistant:   first(flags.Assistant, env.Assistant, p.Assistant),
		APIKey:      first(flags.APIKey, env.APIKey, p.APIKey),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Retry:       p.Retry == nil || *p.Retry,
	}
	if flags.Temperature != nil {
		s.Temperature = flags.Temperature
	}
	if flags.MaxTokens != nil {
		s.MaxTokens = flags.MaxTokens
	}
	if flags.NoRetry {
		s.Retry = false
	}

	if s.APIKey == "" {
		return settings{}, errors.New("no API key found: set RELAY_API_KEY, use --api-key, or add api_key to a profile")
	}
	return s, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
