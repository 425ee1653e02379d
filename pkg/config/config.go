// Package config handles configuration for flowdeploy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Flows     string                `yaml:"flows"`     // Flow set file or directory
	Hierarchy []hierarchy.Attribute `yaml:"hierarchy"` // Ordered levels, order 0 is the instance level
	Instances map[string]string     `yaml:"instances"` // Root hierarchy value -> instance id

	Directions []string       `yaml:"directions"`
	Naming     NamingConfig   `yaml:"naming"`
	Matching   MatchingConfig `yaml:"matching"`
	Fetch      FetchConfig    `yaml:"fetch"`
	Report     ReportConfig   `yaml:"report"`
	Conflict   ConflictConfig `yaml:"conflict"`
}

// ServerConfig locates the external system.
type ServerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
}

// NamingConfig controls generated target names.
type NamingConfig struct {
	Template string `yaml:"template"`
}

// MatchingConfig controls path auto-selection.
type MatchingConfig struct {
	Strictness string `yaml:"strictness"` // ordered or contiguous
}

// FetchConfig controls target path fetch retries.
type FetchConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// ReportConfig controls batch reports.
type ReportConfig struct {
	Output string `yaml:"output"` // Directory; empty uses <home>/reports/<timestamp>
	HTML   bool   `yaml:"html"`
}

// ConflictConfig controls how naming conflicts are answered.
type ConflictConfig struct {
	Policy string `yaml:"policy"` // prompt, cancel or an action name
}

// Conflict policies accepted besides the action names.
const (
	PolicyPrompt = "prompt"
	PolicyCancel = "cancel"
)

var policies = map[string]bool{
	PolicyPrompt:        true,
	PolicyCancel:        true,
	"deploy_anyway":     true,
	"delete_and_deploy": true,
	"update_version":    true,
}

// Load loads configuration from a file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.Defaults()
	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	cfg := &Config{}
	cfg.Defaults()
	return cfg, nil
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = 60 * time.Second
	}
	if len(c.Directions) == 0 {
		c.Directions = []string{string(core.DirectionSource), string(core.DirectionDestination)}
	}
	if c.Naming.Template == "" {
		c.Naming.Template = "{last_hierarchy_value}"
	}
	if c.Matching.Strictness == "" {
		c.Matching.Strictness = "ordered"
	}
	if c.Fetch.MaxAttempts <= 0 {
		c.Fetch.MaxAttempts = 3
	}
	if c.Fetch.InitialDelay <= 0 {
		c.Fetch.InitialDelay = 200 * time.Millisecond
	}
	if c.Fetch.MaxDelay <= 0 {
		c.Fetch.MaxDelay = 2 * time.Second
	}
	if c.Conflict.Policy == "" {
		c.Conflict.Policy = PolicyPrompt
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.HierarchyModel(); err != nil {
		return err
	}
	if _, err := c.ParsedDirections(); err != nil {
		return err
	}
	switch c.Matching.Strictness {
	case "ordered", "contiguous":
	default:
		return fmt.Errorf("matching.strictness: unknown value %q", c.Matching.Strictness)
	}
	if !policies[c.Conflict.Policy] {
		return fmt.Errorf("conflict.policy: unknown value %q", c.Conflict.Policy)
	}
	return nil
}

// HierarchyModel returns the validated hierarchy.
func (c *Config) HierarchyModel() (hierarchy.Hierarchy, error) {
	if len(c.Hierarchy) == 0 {
		return hierarchy.Hierarchy{}, core.ErrInvalidHierarchy.WithMessage("no hierarchy configured")
	}
	return hierarchy.New(c.Hierarchy)
}

// ParsedDirections returns the configured directions in order.
func (c *Config) ParsedDirections() ([]core.Direction, error) {
	dirs := make([]core.Direction, 0, len(c.Directions))
	for _, s := range c.Directions {
		d, ok := core.ParseDirection(s)
		if !ok {
			return nil, fmt.Errorf("directions: unknown direction %q", s)
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}
