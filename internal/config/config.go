/*
PURPOSE:
  Defines the configuration structure and loading logic for workload-bench.
  Adheres to "Config IS Code" philosophy: the built-in server catalog is the
  default, a config file can replace it, flags override both.

REQUIREMENTS:
  User-specified:
  - Iterations, warmup, phase/call timeouts, strict validity, thresholds.
  - Server specs: command, args, env, cwd, workload -> tool mapping, target selector.
  - Protocol versions to negotiate.

  Implementation-discovered:
  - YAML is the primary format; .toml files are accepted too.
  - Environment settings (BENCH_*) are read with caarlos0/env after .env files.
  - Per-workload threshold variables have dynamic names and are looked up directly.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3, github.com/BurntSushi/toml,
    github.com/caarlos0/env/v11, github.com/joho/godotenv

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files are not an error; defaults are used.
  - Invalid BENCH_* values are errors; invalid BENCH_MIN_* values fall back.

IMPLEMENTATION RULES:
  - Config struct tags support yaml and toml.
  - Defaults must match the documented CLI defaults.

USAGE:
  cfg, err := config.Load("workload-bench.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/config/servers.go
  - internal/config/thresholds.go
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/target"
)

// DefaultFiles are searched, in order, when no --config is given.
var DefaultFiles = []string{"workload-bench.yaml", "bench.yaml", "workload-bench.toml"}

// EnvFiles are loaded into the process environment when present.
var EnvFiles = []string{".env", ".env.local"}

// PreflightConfig is the reference CLI that must succeed before any server starts.
type PreflightConfig struct {
	Command string        `yaml:"command" toml:"command"`
	Args    []string      `yaml:"args" toml:"args"`
	Dir     string        `yaml:"dir" toml:"dir"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// Environment holds settings that only come from the process environment.
type Environment struct {
	MaxPayloadBytes  int    `env:"BENCH_MAX_PAYLOAD_BYTES" envDefault:"10000000"`
	MaxPayloadTokens int    `env:"BENCH_MAX_PAYLOAD_TOKENS" envDefault:"2500000"`
	Target           string `env:"BENCH_TARGET"`
	SendTo           string `env:"BENCH_SEND_TO"`
	DatabaseURL      string `env:"DATABASE_URL"`
	LogLevel         string `env:"BENCH_LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"BENCH_LOG_FORMAT" envDefault:"text"`
}

// FallbackTarget is BENCH_TARGET, else BENCH_SEND_TO.
func (e Environment) FallbackTarget() string {
	if e.Target != "" {
		return e.Target
	}
	return e.SendTo
}

// Config represents the full configuration for workload-bench.
type Config struct {
	Output           string             `yaml:"output" toml:"output"`
	Iterations       int                `yaml:"iterations" toml:"iterations"`
	Warmup           int                `yaml:"warmup" toml:"warmup"`
	PhaseTimeout     time.Duration      `yaml:"phase_timeout" toml:"phase_timeout"`
	CallTimeout      time.Duration      `yaml:"call_timeout" toml:"call_timeout"`
	PollInterval     time.Duration      `yaml:"poll_interval" toml:"poll_interval"`
	StrictValidity   bool               `yaml:"strict_validity" toml:"strict_validity"`
	MinBytes         map[string]int     `yaml:"min_bytes" toml:"min_bytes"`
	MinItems         map[string]int     `yaml:"min_items" toml:"min_items"`
	ProtocolVersions []string           `yaml:"protocol_versions" toml:"protocol_versions"`
	Workloads        []string           `yaml:"workloads" toml:"workloads"`
	ServerFilter     string             `yaml:"server_filter" toml:"server_filter"`
	DSN              string             `yaml:"dsn" toml:"dsn"`
	VendorDir        string             `yaml:"vendor_dir" toml:"vendor_dir"`
	Preflight        PreflightConfig    `yaml:"preflight" toml:"preflight"`
	Servers          []model.ServerSpec `yaml:"servers" toml:"servers"`

	// Env is filled from the process environment, never from the file.
	Env Environment `yaml:"-" toml:"-"`
	// Path is the file the config was read from, if any.
	Path string `yaml:"-" toml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Iterations:       5,
		Warmup:           1,
		PhaseTimeout:     20 * time.Second,
		CallTimeout:      10 * time.Second,
		PollInterval:     100 * time.Millisecond,
		StrictValidity:   true,
		MinBytes:         copyInts(DefaultMinBytes),
		MinItems:         copyInts(DefaultMinItems),
		ProtocolVersions: []string{"2024-11-05", "2025-06-18"},
		VendorDir:        filepath.Join("benchmarks", "vendor", "github_mcp"),
		Preflight: PreflightConfig{
			Command: "python3",
			Args:    []string{filepath.Join("gateway", "imessage_client.py"), "recent", "--limit", "1", "--json"},
			Timeout: 15 * time.Second,
		},
		Env: Environment{
			MaxPayloadBytes:  10_000_000,
			MaxPayloadTokens: 2_500_000,
			LogLevel:         "info",
			LogFormat:        "text",
		},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, the defaults and the built-in server catalog are used.
// The environment (.env files, BENCH_* variables) is applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		cfg.Path = path
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = DefaultServers(cfg.VendorDir)
	}

	if err := LoadEnvironment(cfg, EnvFiles); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LoadEnvironment loads the env files that exist, then parses BENCH_* and
// DATABASE_URL into cfg.Env. Variables already set win over file values.
func LoadEnvironment(cfg *Config, files []string) error {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("failed to load env files %v: %w", existing, err)
		}
	}
	if err := env.Parse(&cfg.Env); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if cfg.DSN == "" {
		cfg.DSN = cfg.Env.DatabaseURL
	}
	return nil
}

// Validate checks everything that can be checked before any process starts.
func (c *Config) Validate() error {
	var errs []error
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations must be >= 0, got %d", c.Iterations))
	}
	if c.Warmup < 0 {
		errs = append(errs, fmt.Errorf("warmup must be >= 0, got %d", c.Warmup))
	}
	if c.PhaseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("phase timeout must be positive, got %s", c.PhaseTimeout))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout))
	}
	if c.Preflight.Command == "" {
		errs = append(errs, errors.New("preflight command is required"))
	}
	if _, err := SelectWorkloads(c.Workloads); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	for i, s := range c.Servers {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("servers[%d]: name is required", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("server %q: command is required", s.Name))
		}
		for id, call := range s.Workloads {
			if call.Name == "" {
				errs = append(errs, fmt.Errorf("server %q: workload %s has no tool", s.Name, id))
			}
		}
		if s.Target != nil {
			if s.Target.Tool == "" {
				errs = append(errs, fmt.Errorf("server %q: target selector has no tool", s.Name))
			}
			if _, err := target.ParseKind(s.Target.Kind); err != nil {
				errs = append(errs, fmt.Errorf("server %q: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// FilterServers keeps servers whose name contains filter, case-insensitively.
func FilterServers(servers []model.ServerSpec, filter string) []model.ServerSpec {
	if filter == "" {
		return servers
	}
	needle := strings.ToLower(filter)
	out := make([]model.ServerSpec, 0, len(servers))
	for _, s := range servers {
		if strings.Contains(strings.ToLower(s.Name), needle) {
			out = append(out, s)
		}
	}
	return out
}

func copyInts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
