package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/litemodel/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "litemodel"

// Logger is a slog.Logger carrying service and version on every entry. It
// satisfies the Logger interfaces of the pool, txn, model and mqtt
// packages, so a Component child can be handed to each of them.
type Logger struct {
	*slog.Logger
}

// New builds the daemon logger from the logging section of the config.
// Output "stderr" writes to stderr; anything else goes to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	w := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
// Format "text" selects slog's text handler; JSON is the default.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// parseLevel maps debug, warn (or warning) and error onto slog levels.
// Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child Logger with args added to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is an info-level JSON logger on stdout for use before the config
// is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
