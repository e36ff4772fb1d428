package apool

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the pool configuration. It can
// be populated from JSON, YAML, environment variables, etc. In the zero value
// MaxProcesses is unlimited and AnalyticsInterval falls back to the
// collector default, while a zero GCInterval turns idle group collection off.
type Config struct {
	// MaxProcesses caps worker processes across all groups; 0 means
	// unlimited.
	MaxProcesses int `json:"maxProcesses" yaml:"maxProcesses"`
	// GCInterval is how often idle groups are collected.
	GCInterval time.Duration `json:"gcInterval" yaml:"gcInterval"`
	// AnalyticsInterval is how often worker processes are sampled.
	AnalyticsInterval time.Duration `json:"analyticsInterval" yaml:"analyticsInterval"`
	// CheckInvariants makes every group verify its state before releasing
	// the pool lock, panicking on violation. Intended for tests.
	CheckInvariants bool `json:"checkInvariants" yaml:"checkInvariants"`
}

// DefaultConfig returns a Config populated with the same default values the
// constructors used before configuration became externalised.
func DefaultConfig() *Config {
	return &Config{
		MaxProcesses:      0,
		GCInterval:        30 * time.Second,
		AnalyticsInterval: 4 * time.Second,
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.MaxProcesses < 0 {
		return fmt.Errorf("maxProcesses must be >= 0")
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("gcInterval must be >= 0")
	}
	if c.AnalyticsInterval < 0 {
		return fmt.Errorf("analyticsInterval must be >= 0")
	}
	return nil
}

// UnmarshalYAML decodes durations from "30s" style strings, which the yaml
// package does not do for time.Duration on its own.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		MaxProcesses      int    `yaml:"maxProcesses"`
		GCInterval        string `yaml:"gcInterval"`
		AnalyticsInterval string `yaml:"analyticsInterval"`
		CheckInvariants   bool   `yaml:"checkInvariants"`
	}
	var decoded raw
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	c.MaxProcesses = decoded.MaxProcesses
	c.CheckInvariants = decoded.CheckInvariants
	if decoded.GCInterval != "" {
		interval, err := time.ParseDuration(decoded.GCInterval)
		if err != nil {
			return fmt.Errorf("invalid gcInterval: %w", err)
		}
		c.GCInterval = interval
	}
	if decoded.AnalyticsInterval != "" {
		interval, err := time.ParseDuration(decoded.AnalyticsInterval)
		if err != nil {
			return fmt.Errorf("invalid analyticsInterval: %w", err)
		}
		c.AnalyticsInterval = interval
	}
	return nil
}

// LoadConfig reads a YAML config from URL, which may point to any storage
// scheme the afs service understands.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
