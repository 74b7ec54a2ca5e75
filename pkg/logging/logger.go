// Package logging configures the process-wide zerolog logger and hands out
// component loggers.
//
// Levels:
//
//	debug  cache hits and misses, validation failures, batch worker progress
//	info   token refreshes, store resolutions, empty lookups, startup/shutdown
//	warn   429 cooldowns, retries, cache backend errors (served as a miss)
//	error  failed upstream requests, recovered panics
//
// Common fields: component, endpoint, status_code, duration, error_class,
// zip, upc, store_id, req_id.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used in the "component" field.
const (
	ComponentClient        = "retailer-client"
	ComponentTokens        = "token-manager"
	ComponentTokenCache    = "token-cache"
	ComponentLocations     = "location-resolver"
	ComponentLocationCache = "location-cache"
	ComponentProducts      = "price-fetcher"
	ComponentPrices        = "price-service"
	ComponentRateLimit     = "rate-limit"
	ComponentBatch         = "batch"
	ComponentServer        = "server"
	ComponentApp           = "app"
)

// ErrUnknownLevel is returned by ParseLevel for unsupported names.
var ErrUnknownLevel = errors.New("unknown log level")

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// ParseLevel maps a LOG_LEVEL value onto a zerolog level.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("%w %q (want debug, info, warn or error)", ErrUnknownLevel, s)
}

// Setup installs the global logger used by every component logger created
// afterwards.
func Setup(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("service", "pricegetter").
		Logger()

	return log.Logger, nil
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
