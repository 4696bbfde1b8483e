// Package config holds the engine configuration: an optional HCL file,
// overridden by BONDVET_* environment variables, overridden again by CLI
// flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/haugr/bondvet/internal/bond"
)

// Config is the top-level engine configuration.
type Config struct {
	// ParallelHosts is how many hosts sweep concurrently.
	ParallelHosts int `hcl:"parallel_hosts,optional"`

	// HostTimeout bounds one host's whole sweep, as a duration string.
	HostTimeout string `hcl:"host_timeout,optional"`

	// ProbeTimeout bounds one configuration's negotiation wait.
	ProbeTimeout string `hcl:"probe_timeout,optional"`

	// SettlePause is the wait between configurations.
	SettlePause string `hcl:"settle_pause,optional"`

	// CleanBoot sweeps leftover test bonds before snapshotting.
	CleanBoot *bool `hcl:"clean_boot,optional"`

	// Permutations enables the full configuration matrix; false tests one
	// representative configuration per mode.
	Permutations *bool `hcl:"permutations,optional"`

	// Modes restricts testing to the named bonding modes.
	Modes []string `hcl:"modes,optional"`

	// Inventory is the path to hosts.yaml. Empty means local-only.
	Inventory string `hcl:"inventory,optional"`

	OutputFormat string `hcl:"output_format,optional"`
	OutputFile   string `hcl:"output_file,optional"`

	// MetricsListen, when set, serves Prometheus metrics on the address.
	MetricsListen string `hcl:"metrics_listen,optional"`

	Breaker *BreakerConfig `hcl:"breaker,block"`
}

// BreakerConfig tunes the per-host circuit breakers.
type BreakerConfig struct {
	Threshold int    `hcl:"threshold,optional"`
	Cooldown  string `hcl:"cooldown,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	t := true
	return &Config{
		ParallelHosts: 3,
		HostTimeout:   "40m",
		ProbeTimeout:  "30s",
		SettlePause:   "2s",
		CleanBoot:     &t,
		Permutations:  &t,
		OutputFormat:  "json",
		Breaker:       &BreakerConfig{Threshold: 5, Cooldown: "60s"},
	}
}

// LoadFile parses an HCL config file over the defaults and applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.mergeHCL(data, path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeHCL(data []byte, filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var parsed Config
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return fmt.Errorf("config decode error: %s", diags.Error())
	}

	if parsed.ParallelHosts != 0 {
		c.ParallelHosts = parsed.ParallelHosts
	}
	if parsed.HostTimeout != "" {
		c.HostTimeout = parsed.HostTimeout
	}
	if parsed.ProbeTimeout != "" {
		c.ProbeTimeout = parsed.ProbeTimeout
	}
	if parsed.SettlePause != "" {
		c.SettlePause = parsed.SettlePause
	}
	if parsed.CleanBoot != nil {
		c.CleanBoot = parsed.CleanBoot
	}
	if parsed.Permutations != nil {
		c.Permutations = parsed.Permutations
	}
	if len(parsed.Modes) > 0 {
		c.Modes = parsed.Modes
	}
	if parsed.Inventory != "" {
		c.Inventory = parsed.Inventory
	}
	if parsed.OutputFormat != "" {
		c.OutputFormat = parsed.OutputFormat
	}
	if parsed.OutputFile != "" {
		c.OutputFile = parsed.OutputFile
	}
	if parsed.MetricsListen != "" {
		c.MetricsListen = parsed.MetricsListen
	}
	if parsed.Breaker != nil {
		if parsed.Breaker.Threshold != 0 {
			c.Breaker.Threshold = parsed.Breaker.Threshold
		}
		if parsed.Breaker.Cooldown != "" {
			c.Breaker.Cooldown = parsed.Breaker.Cooldown
		}
	}
	return nil
}

// applyEnv mirrors the CLI flags for non-interactive invocation.
func (c *Config) applyEnv() {
	if v := os.Getenv("BONDVET_PARALLEL_HOSTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ParallelHosts = n
		}
	}
	if v := os.Getenv("BONDVET_NO_CLEAN_BOOT"); isTruthy(v) {
		f := false
		c.CleanBoot = &f
	}
	if v := os.Getenv("BONDVET_NO_PERMUTATIONS"); isTruthy(v) {
		f := false
		c.Permutations = &f
	}
	if v := os.Getenv("BONDVET_TEST_DURATION"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			c.ProbeTimeout = v
		}
	}
	if v := os.Getenv("BONDVET_INVENTORY"); v != "" {
		c.Inventory = v
	}
	if v := os.Getenv("BONDVET_OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = v
	}
}

func isTruthy(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.ParallelHosts < 1 {
		return fmt.Errorf("parallel_hosts must be at least 1")
	}
	if c.OutputFormat != "json" && c.OutputFormat != "markdown" {
		return fmt.Errorf("output_format must be json or markdown, got %q", c.OutputFormat)
	}
	for _, field := range []struct{ name, value string }{
		{"host_timeout", c.HostTimeout},
		{"probe_timeout", c.ProbeTimeout},
		{"settle_pause", c.SettlePause},
		{"breaker cooldown", c.Breaker.Cooldown},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}
	for _, m := range c.Modes {
		if _, err := bond.ParseMode(m); err != nil {
			return err
		}
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker threshold must be at least 1")
	}
	return nil
}

// Duration returns a parsed duration field. Validate must have passed.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ParsedModes maps the configured mode names onto bond modes.
func (c *Config) ParsedModes() ([]bond.Mode, error) {
	modes := make([]bond.Mode, 0, len(c.Modes))
	for _, m := range c.Modes {
		mode, err := bond.ParseMode(m)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	return modes, nil
}
