package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// NewLogger creates a slog logger writing to stderr from viper settings.
// Reads "logging.level" (debug, info, warn, error; default "info")
// and "logging.format" (text, json; default "text").
func NewLogger(v *viper.Viper) (*slog.Logger, error) {
	return newLogger(os.Stderr, v.GetString("logging.level"), v.GetString("logging.format"))
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q, %w", level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"text\" or \"json\"", format)
	}
}
