package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LoggingOpts struct {
	Debug bool
	JSON  bool

	// Level is a log filter such as "info" or "warn". When set it overrides Debug.
	Level   string
	Service string
	Version string

	// Output defaults to stderr.
	Output io.Writer
}

func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}
	if opts.Level != "" {
		if lvl, err := ParseLogLevel(opts.Level); err == nil {
			logLevel = lvl
		}
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}

	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	return log
}

// ParseLogLevel maps a filter name to its level. An empty filter means info.
func ParseLogLevel(filter string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", filter)
	}
}
