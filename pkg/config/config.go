// Package config provides configuration loading and validation for indexed
// trees, their allocators and the burndown tracker.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/indexedrb/pkg/burndown"
	"github.com/Sumatoshi-tech/indexedrb/pkg/observability"
	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
)

// Sentinel validation errors.
var (
	ErrInvalidShards    = errors.New("allocator shards must be positive")
	ErrInvalidThreshold = errors.New("hibernation threshold must not be negative")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("log format must be text or json")
)

const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// Config holds all configuration.
type Config struct {
	Allocator AllocatorConfig `mapstructure:"allocator"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AllocatorConfig holds node allocator configuration.
type AllocatorConfig struct {
	// Shards is the number of independent allocators of a ShardedAllocator.
	Shards int `mapstructure:"shards"`
	// HibernationThreshold is the total number of slots below which hibernation is skipped.
	HibernationThreshold int `mapstructure:"hibernation_threshold"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Service     string `mapstructure:"service"`
	Environment string `mapstructure:"environment"`
}

// MetricsConfig holds metrics-specific configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("indexedrb")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/indexedrb")
	}

	viperCfg.SetEnvPrefix("INDEXEDRB")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("allocator.shards", DefaultAllocatorShards)
	viperCfg.SetDefault("allocator.hibernation_threshold", DefaultHibernationThreshold)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)
	viperCfg.SetDefault("logging.service", DefaultServiceName)
	viperCfg.SetDefault("logging.environment", "")

	viperCfg.SetDefault("metrics.enabled", DefaultMetricsEnabled)
}

func validateConfig(config *Config) error {
	if config.Allocator.Shards <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, config.Allocator.Shards)
	}

	if config.Allocator.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, config.Allocator.HibernationThreshold)
	}

	_, err := config.Logging.SlogLevel()
	if err != nil {
		return err
	}

	switch strings.ToLower(config.Logging.Format) {
	case logFormatText, logFormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (cfg LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(cfg.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Level)
	}

	return level, nil
}

// Logger builds the logger described by cfg, writing to output.
func (cfg LoggingConfig) Logger(output io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	return observability.NewLogger(observability.Config{
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
		LogLevel:    level,
		LogJSON:     strings.EqualFold(cfg.Format, logFormatJSON),
		Output:      output,
	}), nil
}

// NewShardedAllocator creates a ShardedAllocator sized by cfg.
func NewShardedAllocator[T any](cfg AllocatorConfig, logger *slog.Logger) *rbtree.ShardedAllocator[T] {
	allocators := rbtree.NewShardedAllocator[T](cfg.Shards, cfg.HibernationThreshold)
	allocators.SetLogger(logger)

	return allocators
}

// NewTracker creates a burndown Tracker sized by the allocator settings.
func (cfg *Config) NewTracker(logger *slog.Logger) *burndown.Tracker {
	return burndown.NewTracker(cfg.Allocator.Shards, cfg.Allocator.HibernationThreshold, logger)
}

// NewRecorder returns the tree metrics recorder and the Prometheus exporter
// serving them. Both are nil when metrics are disabled.
func (cfg *Config) NewRecorder() (rbtree.Recorder, *observability.Prometheus, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil, nil
	}

	prom, err := observability.NewPrometheus()
	if err != nil {
		return nil, nil, err
	}

	metrics, err := observability.NewTreeMetrics(prom.Meter())
	if err != nil {
		return nil, nil, err
	}

	return metrics, prom, nil
}
