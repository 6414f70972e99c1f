package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger; every subsystem derives its own
// child logger from it rather than logging through the global directly.
var Log zerolog.Logger

// Initialize sets up the global logger: JSON in production, a
// zerolog.ConsoleWriter in dev (pretty=true), matching
// internal/logger/logger.go's level/format switch.
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

	Log = log.With().
		Str("service", "swindon").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the process-wide base logger.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Pool creates a child logger for a named session pool's processor
// (spec §4.1).
func Pool(name string) zerolog.Logger {
	return Log.With().Str("component", "pool").Str("pool", name).Logger()
}

// Frontend creates a child logger for the WebSocket frontend (spec §4.5).
func Frontend() zerolog.Logger {
	return Log.With().Str("component", "frontend").Logger()
}

// Backend creates a child logger for the upstream HTTP backend pool
// (spec §4.3).
func Backend() zerolog.Logger {
	return Log.With().Str("component", "backend").Logger()
}

// Replication creates a child logger for the peer replication manager
// (spec §4.7).
func Replication() zerolog.Logger {
	return Log.With().Str("component", "replication").Logger()
}

// Admin creates a child logger for the admin REST surface (spec §4.6).
func Admin() zerolog.Logger {
	return Log.With().Str("component", "admin").Logger()
}

// Inactivity creates a child logger for the InactiveSession dispatcher
// (spec §4.8).
func Inactivity() zerolog.Logger {
	return Log.With().Str("component", "inactivity").Logger()
}

// Router creates a child logger for the host/path routing table
// (spec §4.9).
func Router() zerolog.Logger {
	return Log.With().Str("component", "router").Logger()
}
