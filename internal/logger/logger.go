// Package logger provides the application-wide hclog root logger.
// Components derive named sub-loggers from it (e.g. "tunecast.stream-cache").
package logger

import (
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New creates the root logger for the service.
func New(level string, colors bool) hclog.Logger {
	colorMode := hclog.ColorOff
	if colors {
		colorMode = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:  "tunecast",
		Level: ParseLevel(level),
		Color: colorMode,
	})
}

// ParseLevel maps a config string to an hclog level, defaulting to info.
func ParseLevel(level string) hclog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return hclog.Trace
	case "debug":
		return hclog.Debug
	case "info":
		return hclog.Info
	case "warn", "warning":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}
