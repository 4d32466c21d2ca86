// Package observability builds the process-wide structured logger from
// configuration.
package observability

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/sentinelci/pr-sentinel/internal/config"
)

const loggerName = "sentinel"

// NewLogger creates an hclog logger per the logging config. Unknown
// levels fall back to info, unknown formats to human-readable output.
func NewLogger(cfg config.LoggingConfig) hclog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, out io.Writer) hclog.Logger {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       loggerName,
		Level:      level,
		Output:     out,
		JSONFormat: cfg.Format == "json",
	})
}
