package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cayleygraph/quad"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDatabase        = "LEMMA_DB"
	EnvInferredContext = "LEMMA_INFERRED_CONTEXT"
	EnvLogLevel        = "LEMMA_LOG_LEVEL"
)

// Defaults.
const (
	DefaultDatabasePath    = "lemma.db"
	DefaultInferredContext = "urn:lemma:inferred"
	DefaultReasonerCreator = "lemma:reasoner"
	DefaultMaxRounds       = 1000
	DefaultLogLevel        = "info"
)

// Config is the runtime configuration of the lemma CLI.
type Config struct {
	// DatabasePath is the sqlite file holding facts, justifications and
	// programs.
	DatabasePath string `yaml:"database" validate:"required"`

	// InferredContext is the graph IRI for inferred facts whose rule head
	// has no context. "none" keeps them in the default graph.
	InferredContext string `yaml:"inferred_context" validate:"required"`

	ReasonerCreator string `yaml:"reasoner_creator" validate:"required"`
	MaxRounds       int    `yaml:"max_rounds" validate:"min=1,max=1000000"`
	LogLevel        string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// MetricsAddr is the listen address for /metrics; empty disables it.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// NoInferredContext disables the inferred graph.
const NoInferredContext = "none"

var validate = validator.New()

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatabasePath:    DefaultDatabasePath,
		InferredContext: DefaultInferredContext,
		ReasonerCreator: DefaultReasonerCreator,
		MaxRounds:       DefaultMaxRounds,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvDatabase); v != "" {
		c.DatabasePath = v
	}
	if v := getenv(EnvInferredContext); v != "" {
		c.InferredContext = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// Validate checks struct tags and the inferred context IRI.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.InferredContext != NoInferredContext && strings.ContainsAny(c.InferredContext, " <>\"") {
		return fmt.Errorf("inferred_context %q is not an IRI", c.InferredContext)
	}
	return nil
}

// InferredGraph returns the inferred context as a node, or nil when disabled.
func (c *Config) InferredGraph() quad.Value {
	if c.InferredContext == NoInferredContext {
		return nil
	}
	return quad.IRI(c.InferredContext)
}

// Level parses LogLevel.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
