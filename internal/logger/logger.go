package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "plugifyd").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// Orchestrator creates a logger for lifecycle/orchestration events.
func Orchestrator() *zerolog.Logger {
	l := Log.With().Str("component", "orchestrator").Logger()
	return &l
}

// Resolver creates a logger for dependency resolution events.
func Resolver() *zerolog.Logger {
	l := Log.With().Str("component", "resolver").Logger()
	return &l
}

// Jit creates a logger for trampoline build events.
func Jit() *zerolog.Logger {
	l := Log.With().Str("component", "jit").Logger()
	return &l
}

// NativeLoader creates a logger for shared-library load/unload events.
func NativeLoader() *zerolog.Logger {
	l := Log.With().Str("component", "nativeloader").Logger()
	return &l
}

// AdminAPI creates a logger for the operational HTTP/WS surface.
func AdminAPI() *zerolog.Logger {
	l := Log.With().Str("component", "adminapi").Logger()
	return &l
}
