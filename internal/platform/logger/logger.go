// Package logger provides the zerolog logger shared by the crewledger
// binaries.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to stdout, tagged with the service name.
// The level comes from CREWLEDGER_LOG_LEVEL (debug, info, warn, error) and
// applies from process start, before config loads. Unset or unparseable
// values fall back to info.
func New(serviceName string) zerolog.Logger {
	level := zerolog.InfoLevel
	if v := os.Getenv("CREWLEDGER_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(v))); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stdout).Level(level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
