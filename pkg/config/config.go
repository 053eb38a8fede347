package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cairnlabs/cairn/pkg/log"
)

const (
	minMemoryBytes = 1 * 1024 * 1024
	maxMemoryBytes = 16 * 1024 * 1024 * 1024
)

// OrchestratorConfig controls scheduling and background maintenance.
type OrchestratorConfig struct {
	MaxConcurrentAgents int
	EnableSignalPolling bool
	CleanupMaxAge       time.Duration
	CleanupInterval     time.Duration
}

// ExecutorConfig holds sandbox resource limits.
type ExecutorConfig struct {
	MaxExecutionTime  time.Duration
	MaxMemoryBytes    int64
	MaxRecursionDepth int
}

// PathsConfig locates the project and the Cairn home directory.
type PathsConfig struct {
	ProjectRoot string
	CairnHome   string
}

// LLMConfig points at an Ollama-compatible generation endpoint.
type LLMConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Config is the complete runtime configuration. Precedence, lowest to
// highest: compiled defaults, YAML file, CAIRN_* environment, explicit
// field writes by the caller (CLI flags, tests).
type Config struct {
	Orchestrator OrchestratorConfig
	Executor     ExecutorConfig
	Paths        PathsConfig
	LLM          LLMConfig
	LogLevel     string
}

// Default returns the compiled defaults. ProjectRoot is the working
// directory and CairnHome is ~/.cairn, mirroring the signal/state layout
// the CLI documents.
func Default() Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = root
	}
	return Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrentAgents: 5,
			EnableSignalPolling: true,
			CleanupMaxAge:       168 * time.Hour,
			CleanupInterval:     time.Hour,
		},
		Executor: ExecutorConfig{
			MaxExecutionTime:  60 * time.Second,
			MaxMemoryBytes:    100 * 1024 * 1024,
			MaxRecursionDepth: 1000,
		},
		Paths: PathsConfig{
			ProjectRoot: root,
			CairnHome:   filepath.Join(home, ".cairn"),
		},
		LLM: LLMConfig{
			Endpoint: "http://localhost:11434",
			Model:    "qwen2.5-coder:7b",
			Timeout:  30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment. An empty path skips the file layer; a named file that does
// not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors cairn.yaml. Pointer fields distinguish "absent" from
// zero so the file only overrides what it names. Durations are written as
// seconds (numbers) or Go duration strings.
type fileConfig struct {
	Orchestrator struct {
		MaxConcurrentAgents *int    `yaml:"max_concurrent_agents"`
		EnableSignalPolling *bool   `yaml:"enable_signal_polling"`
		CleanupMaxAge       *string `yaml:"cleanup_max_age"`
		CleanupInterval     *string `yaml:"cleanup_interval"`
	} `yaml:"orchestrator"`
	Executor struct {
		MaxExecutionTime  *float64 `yaml:"max_execution_time"`
		MaxMemoryBytes    *int64   `yaml:"max_memory_bytes"`
		MaxRecursionDepth *int     `yaml:"max_recursion_depth"`
	} `yaml:"executor"`
	Paths struct {
		ProjectRoot *string `yaml:"project_root"`
		CairnHome   *string `yaml:"cairn_home"`
	} `yaml:"paths"`
	LLM struct {
		Endpoint *string `yaml:"endpoint"`
		Model    *string `yaml:"model"`
		Timeout  *string `yaml:"timeout"`
	} `yaml:"llm"`
	LogLevel *string `yaml:"log_level"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if v := fc.Orchestrator.MaxConcurrentAgents; v != nil {
		c.Orchestrator.MaxConcurrentAgents = *v
	}
	if v := fc.Orchestrator.EnableSignalPolling; v != nil {
		c.Orchestrator.EnableSignalPolling = *v
	}
	if v := fc.Orchestrator.CleanupMaxAge; v != nil {
		d, err := parseDuration(*v)
		if err != nil {
			return fmt.Errorf("cleanup_max_age: %w", err)
		}
		c.Orchestrator.CleanupMaxAge = d
	}
	if v := fc.Orchestrator.CleanupInterval; v != nil {
		d, err := parseDuration(*v)
		if err != nil {
			return fmt.Errorf("cleanup_interval: %w", err)
		}
		c.Orchestrator.CleanupInterval = d
	}
	if v := fc.Executor.MaxExecutionTime; v != nil {
		c.Executor.MaxExecutionTime = secondsToDuration(*v)
	}
	if v := fc.Executor.MaxMemoryBytes; v != nil {
		c.Executor.MaxMemoryBytes = *v
	}
	if v := fc.Executor.MaxRecursionDepth; v != nil {
		c.Executor.MaxRecursionDepth = *v
	}
	if v := fc.Paths.ProjectRoot; v != nil {
		c.Paths.ProjectRoot = *v
	}
	if v := fc.Paths.CairnHome; v != nil {
		c.Paths.CairnHome = *v
	}
	if v := fc.LLM.Endpoint; v != nil {
		c.LLM.Endpoint = *v
	}
	if v := fc.LLM.Model; v != nil {
		c.LLM.Model = *v
	}
	if v := fc.LLM.Timeout; v != nil {
		d, err := parseDuration(*v)
		if err != nil {
			return fmt.Errorf("llm timeout: %w", err)
		}
		c.LLM.Timeout = d
	}
	if v := fc.LogLevel; v != nil {
		c.LogLevel = *v
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CAIRN_ORCHESTRATOR_MAX_CONCURRENT_AGENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAIRN_ORCHESTRATOR_MAX_CONCURRENT_AGENTS: %w", err)
		}
		c.Orchestrator.MaxConcurrentAgents = n
	}
	if v := os.Getenv("CAIRN_ORCHESTRATOR_ENABLE_SIGNAL_POLLING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CAIRN_ORCHESTRATOR_ENABLE_SIGNAL_POLLING: %w", err)
		}
		c.Orchestrator.EnableSignalPolling = b
	}
	if v := os.Getenv("CAIRN_ORCHESTRATOR_CLEANUP_MAX_AGE"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("CAIRN_ORCHESTRATOR_CLEANUP_MAX_AGE: %w", err)
		}
		c.Orchestrator.CleanupMaxAge = d
	}
	if v := os.Getenv("CAIRN_ORCHESTRATOR_CLEANUP_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("CAIRN_ORCHESTRATOR_CLEANUP_INTERVAL: %w", err)
		}
		c.Orchestrator.CleanupInterval = d
	}
	if v := os.Getenv("CAIRN_EXECUTOR_MAX_EXECUTION_TIME"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CAIRN_EXECUTOR_MAX_EXECUTION_TIME: %w", err)
		}
		c.Executor.MaxExecutionTime = secondsToDuration(secs)
	}
	if v := os.Getenv("CAIRN_EXECUTOR_MAX_MEMORY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CAIRN_EXECUTOR_MAX_MEMORY_BYTES: %w", err)
		}
		c.Executor.MaxMemoryBytes = n
	}
	if v := os.Getenv("CAIRN_EXECUTOR_MAX_RECURSION_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAIRN_EXECUTOR_MAX_RECURSION_DEPTH: %w", err)
		}
		c.Executor.MaxRecursionDepth = n
	}
	if v := os.Getenv("CAIRN_PATHS_PROJECT_ROOT"); v != "" {
		c.Paths.ProjectRoot = v
	}
	if v := os.Getenv("CAIRN_PATHS_CAIRN_HOME"); v != "" {
		c.Paths.CairnHome = v
	}
	if v := os.Getenv("CAIRN_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("CAIRN_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("CAIRN_LLM_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("CAIRN_LLM_TIMEOUT: %w", err)
		}
		c.LLM.Timeout = d
	}
	if v := os.Getenv("CAIRN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate enforces the documented ranges.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentAgents < 1 {
		return fmt.Errorf("max_concurrent_agents must be >= 1, got %d", c.Orchestrator.MaxConcurrentAgents)
	}
	if c.Executor.MaxExecutionTime <= 0 {
		return fmt.Errorf("max_execution_time must be positive, got %s", c.Executor.MaxExecutionTime)
	}
	if c.Executor.MaxMemoryBytes < minMemoryBytes || c.Executor.MaxMemoryBytes > maxMemoryBytes {
		return fmt.Errorf("max_memory_bytes must be between %d and %d, got %d",
			minMemoryBytes, maxMemoryBytes, c.Executor.MaxMemoryBytes)
	}
	if c.Executor.MaxRecursionDepth < 1 {
		return fmt.Errorf("max_recursion_depth must be >= 1, got %d", c.Executor.MaxRecursionDepth)
	}
	if c.Paths.ProjectRoot == "" || c.Paths.CairnHome == "" {
		return fmt.Errorf("project_root and cairn_home must be set")
	}
	return nil
}

// AgentFSDir is where overlay backing databases live.
func (c *Config) AgentFSDir() string {
	return filepath.Join(c.Paths.ProjectRoot, ".agentfs")
}

// SignalsDir is the watched signal-file drop directory.
func (c *Config) SignalsDir() string {
	return filepath.Join(c.Paths.CairnHome, "signals")
}

// StateFile is the derived orchestrator snapshot consumed by the CLI.
func (c *Config) StateFile() string {
	return filepath.Join(c.Paths.CairnHome, "state", "orchestrator.json")
}

// WorkspacesDir holds materialized review workspaces, one per agent.
func (c *Config) WorkspacesDir() string {
	return filepath.Join(c.Paths.CairnHome, "workspaces")
}

// LogConfig translates the configured level into a pkg/log Config.
func (c *Config) LogConfig() log.Config {
	return log.Config{Level: log.Level(c.LogLevel)}
}

// parseDuration accepts Go duration strings ("90m", "168h") and bare
// numbers meaning seconds ("604800").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return secondsToDuration(secs), nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
