// File: internal/config/config.go

// Package config defines the application configuration, its defaults, and
// validation. Configuration is resolved through viper: defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	Executor   ExecutorConfig   `mapstructure:"executor" yaml:"executor"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Workflow   WorkflowConfig   `mapstructure:"workflow" yaml:"workflow"`
}

// LoggerConfig controls the global logger: level, encoding, and the
// rotating file sink.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the ANSI color codes for console log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig tunes the control loop and its memories.
type AgentConfig struct {
	MaxIterations   int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	LoopThreshold   int           `mapstructure:"loop_threshold" yaml:"loop_threshold"`
	MemoryCapacity  int           `mapstructure:"memory_capacity" yaml:"memory_capacity"`
	PlannedCapacity int           `mapstructure:"planned_capacity" yaml:"planned_capacity"`
}

// PerceptionConfig selects and tunes the vision backend.
type PerceptionConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ExecutorConfig tunes the screen driver.
type ExecutorConfig struct {
	Display      string        `mapstructure:"display" yaml:"display"`
	ScreenWidth  int           `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight int           `mapstructure:"screen_height" yaml:"screen_height"`
	TypeDelay    time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
}

// StoreConfig locates the long-term memory document.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// WorkflowConfig tunes the workflow engine.
type WorkflowConfig struct {
	MaxDepth    int           `mapstructure:"max_depth" yaml:"max_depth"`
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	AutoApprove bool          `mapstructure:"auto_approve" yaml:"auto_approve"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "superagent")
	v.SetDefault("logger.log_file", "superagent.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.max_iterations", 50)
	v.SetDefault("agent.default_timeout", "5m")
	v.SetDefault("agent.settle_delay", "200ms")
	v.SetDefault("agent.loop_threshold", 3)
	v.SetDefault("agent.memory_capacity", 10)
	v.SetDefault("agent.planned_capacity", 20)

	// -- Perception --
	v.SetDefault("perception.provider", "gemini")
	v.SetDefault("perception.model", "gemini-2.5-flash")
	v.SetDefault("perception.api_timeout", "60s")
	v.SetDefault("perception.max_retries", 3)
	v.SetDefault("perception.max_backoff", "8s")
	v.SetDefault("perception.temperature", 0.2)
	v.SetDefault("perception.max_tokens", 2048)

	// -- Executor --
	v.SetDefault("executor.display", ":0")
	v.SetDefault("executor.screen_width", 1920)
	v.SetDefault("executor.screen_height", 1080)
	v.SetDefault("executor.type_delay", "12ms")

	// -- Store --
	v.SetDefault("store.path", "superagent_memory.json")

	// -- Workflow --
	v.SetDefault("workflow.max_depth", 8)
	v.SetDefault("workflow.step_timeout", "2m")
	v.SetDefault("workflow.auto_approve", false)
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("perception.api_key", "SUPERAGENT_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads configuration from the optional file at path, applying
// defaults and environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be a positive integer")
	}
	if c.Agent.DefaultTimeout <= 0 {
		return fmt.Errorf("agent.default_timeout must be a positive duration")
	}
	if c.Agent.LoopThreshold <= 0 {
		return fmt.Errorf("agent.loop_threshold must be a positive integer")
	}
	if c.Perception.Provider == "" {
		return fmt.Errorf("perception.provider is required")
	}
	if c.Perception.MaxRetries < 0 {
		return fmt.Errorf("perception.max_retries must not be negative")
	}
	if c.Executor.ScreenWidth <= 0 || c.Executor.ScreenHeight <= 0 {
		return fmt.Errorf("executor screen dimensions must be positive")
	}
	if c.Workflow.MaxDepth <= 0 {
		return fmt.Errorf("workflow.max_depth must be a positive integer")
	}
	return nil
}
