package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// path to write to; "" or "-" for stdout
	LogPath string

	// text|json
	LogFormat string

	// debug|info|warn|error
	LogLevel string
}

func firstenv(env_var_names ...string) string {
	for _, env_var_name := range env_var_names {
		val := os.Getenv(env_var_name)
		if val != "" {
			return val
		}
	}
	return ""
}

// ParseLevel accepts debug|info|warn|error, in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %#v", s)
}

// SetupSlog integrates passed in options and env vars, and installs the
// result as the slog default logger.
//
// passing default cliutil.LogOptions{} is ok.
//
// CANVASMOD_LOG_LEVEL=debug|info|warn|error
//
// CANVASMOD_LOG_FMT=text|json
//
// CANVASMOD_LOG_FILE=path (or "-" or "" for stdout)
func SetupSlog(options LogOptions) (*slog.Logger, io.Closer, error) {
	if options.LogLevel == "" {
		options.LogLevel = firstenv("CANVASMOD_LOG_LEVEL", "LOG_LEVEL")
	}
	level, err := ParseLevel(options.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if options.LogFormat == "" {
		options.LogFormat = firstenv("CANVASMOD_LOG_FMT", "LOG_FMT")
	}
	format := strings.ToLower(options.LogFormat)
	if format == "" {
		format = "text"
	}

	if options.LogPath == "" {
		options.LogPath = firstenv("CANVASMOD_LOG_FILE")
	}
	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if options.LogPath != "" && options.LogPath != "-" {
		f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", options.LogPath, err)
		}
		out = f
		closer = f
	}

	hopts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(out, hopts)
	case "json":
		handler = slog.NewJSONHandler(out, hopts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("invalid log format: %#v", options.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}
