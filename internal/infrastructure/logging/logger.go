package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "airdog-bridge"

const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the output.
var secretKeys = map[string]bool{
	"token":    true,
	"password": true,
	"secret":   true,
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is the slog.Logger the bridge passes around. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the config. An output
// file that cannot be opened falls back to stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, openOutput(cfg))
}

// NewWithWriter is New with the destination supplied, so cfg.Output is
// ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	base := slog.New(h).With("service", ServiceName, "version", version)
	return &Logger{Logger: base}
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the pre-config logger: JSON at info on stdout.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info"}, "dev", os.Stdout)
}

// Discard drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

func openOutput(cfg config.LoggingConfig) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout
	case "file":
		if cfg.File.Path != "" {
			if f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640); err == nil {
				return f
			}
		}
	}
	return os.Stderr
}

// parseLevel is case-insensitive; anything unknown means info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}
