// Package envconfig reads process configuration from FENCE_*
// environment variables.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/fencegen/fence/logutil"
)

// Debug reports whether FENCE_DEBUG is truthy.
func Debug() bool { return truthy("FENCE_DEBUG") }

// Trace reports whether FENCE_TRACE is truthy. Trace implies debug.
func Trace() bool { return truthy("FENCE_TRACE") }

// LogLevel returns the slog level selected by the environment.
func LogLevel() slog.Level {
	switch {
	case Trace():
		return logutil.LevelTrace
	case Debug():
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func truthy(name string) bool {
	v := os.Getenv(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// any non-empty unparseable value counts as set, matching
		// FENCE_DEBUG=junk intent
		return true
	}
	return b
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"FENCE_DEBUG": {"FENCE_DEBUG", Debug(), "Show additional debug information (e.g. FENCE_DEBUG=1)"},
		"FENCE_TRACE": {"FENCE_TRACE", Trace(), "Trace per-step lane transitions (implies FENCE_DEBUG)"},
	}
}
