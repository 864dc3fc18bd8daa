// Package observability wires structured logging and OpenTelemetry metrics
// for indexed trees.
package observability

import (
	"io"
	"log/slog"
	"os"
)

const (
	defaultServiceName = "indexedrb"
	meterName          = "indexedrb"
)

// Config holds the logging settings.
type Config struct {
	// ServiceName is attached to every log record.
	ServiceName string

	// Environment is attached to log records when set (e.g. "production").
	Environment string

	// LogLevel is the minimum level of emitted records.
	LogLevel slog.Level

	// LogJSON switches from the text handler to the JSON handler.
	LogJSON bool

	// Output receives log records. Nil means os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		LogLevel:    slog.LevelInfo,
	}
}

// NewLogger builds a logger from cfg. Records carry the service metadata and,
// when the context holds a span, its trace and span IDs.
func NewLogger(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(output, handlerOpts)
	} else {
		inner = slog.NewTextHandler(output, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment))
}
