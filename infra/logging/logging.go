package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/webitel/im-presence-service/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ScopeName is the instrumentation scope of records bridged to OpenTelemetry.
const ScopeName = "github.com/webitel/im-presence-service"

// Logger bundles the root logger with the level it is filtered by, so the
// level can be changed at runtime on config reload.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	out   io.Writer
}

// New builds the root logger. Records go to stdout or the rotating file and are
// also bridged to the global OpenTelemetry LoggerProvider, which stays a no-op
// until telemetry installs an exporting one.
func New(cfg config.LogConfig) (*Logger, error) {
	return newLogger(cfg, otelslog.NewHandler(ScopeName))
}

func newLogger(cfg config.LogConfig, bridge slog.Handler) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	var out io.Writer = os.Stdout
	if cfg.Output == "file" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		out = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	return &Logger{
		Logger: slog.New(fanoutHandler{
			level:    level,
			handlers: []slog.Handler{newHandler(out, cfg.Format, level), bridge},
		}),
		Level:  level,
		out:    out,
	}, nil
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// fanoutHandler sends each record to every sub-handler that accepts it. The
// shared level gates all of them, so a runtime level switch reaches the bridge too.
type fanoutHandler struct {
	level    slog.Leveler
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < f.level.Level() {
		return false
	}
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		derived[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{level: f.level, handlers: derived}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		derived[i] = h.WithGroup(name)
	}
	return fanoutHandler{level: f.level, handlers: derived}
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close releases the rotating file, if any.
func (l *Logger) Close() error {
	if c, ok := l.out.(io.Closer); ok && l.out != os.Stdout {
		return c.Close()
	}
	return nil
}
