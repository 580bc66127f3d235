// Package logger provides the structured zerolog logging used across the
// scheduling core: one global logger plus a component sub-logger per
// package, so every log line is filterable by the part of the system that
// emitted it.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger. Use the component helpers below for anything
// emitted from a specific package.
var Log zerolog.Logger

// Initialize configures the global logger. Call once at process startup,
// before any other package logs anything.
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

	Log = log.With().Str("service", "schedcore").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger.
func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Scheduler returns the sub-logger for the pick/prioritize pipeline.
func Scheduler() *zerolog.Logger { return component("scheduler") }

// Placement returns the sub-logger for single/multi-node placement.
func Placement() *zerolog.Logger { return component("placement") }

// Orchestrator returns the sub-logger for the per-group ticker and state
// machine driver.
func Orchestrator() *zerolog.Logger { return component("orchestrator") }

// Lock returns the sub-logger for distributed-lock acquisition/renewal.
func Lock() *zerolog.Logger { return component("lock") }

// Store returns the sub-logger for StateStore backends.
func Store() *zerolog.Logger { return component("store") }

// Events returns the sub-logger for event buffering/publishing.
func Events() *zerolog.Logger { return component("events") }
