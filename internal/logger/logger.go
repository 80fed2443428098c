// Package logger provides structured, component-attributed logging for the
// module plane core.
//
// Every subsystem gets a child logger carrying a "component" field so
// operators can grep a single process's output by subsystem. Module-
// originated log messages (the IPC "log" type, see internal/modules)
// are routed through Module(name) so they carry the same shape as
// core-emitted logs.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger. Initialize must be called once
// at startup before any component logger is derived from it.
var Log zerolog.Logger

// Initialize configures the global logger. pretty selects a human
// readable console writer (development); otherwise logs are newline
// delimited JSON suitable for ingestion.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "modplane-core").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// Component returns a child logger tagged with an arbitrary component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// Module returns a child logger attributed to a loaded module, used both
// for core-side module lifecycle logging and for relaying a module's own
// "log" IPC messages (internal/modules/ipc.go) into the core's sink.
func Module(name string) zerolog.Logger {
	return Log.With().Str("component", "module").Str("module", name).Logger()
}

// HTTP returns a logger scoped to HTTP request handling.
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// WebSocket returns a logger scoped to the connection hub.
func WebSocket() zerolog.Logger {
	return Log.With().Str("component", "websocket").Logger()
}

// Security returns a logger scoped to authentication and authorization events.
func Security() zerolog.Logger {
	return Log.With().Str("component", "security").Logger()
}

// Database returns a logger scoped to relational store access.
func Database() zerolog.Logger {
	return Log.With().Str("component", "database").Logger()
}
