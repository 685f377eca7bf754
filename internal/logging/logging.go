package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// LevelLog sits between warn and info. Verbosity "log" prints errors,
// warnings and log records but no info or debug.
const LevelLog = slog.Level(2)

type Options struct {
	Level  string
	JSON   bool
	Writer io.Writer
}

var def atomic.Value

func init() {
	def.Store(New(Options{Level: "info"}))
}

// New builds a logger without touching the process default.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: ParseLevel(opts.Level), ReplaceAttr: replaceAttr}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	return slog.New(h)
}

func Configure(opts Options) {
	def.Store(New(opts))
}

// ParseLevel maps error|warn|log|info|debug onto slog levels. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return slog.LevelDebug
	case "log":
		return LevelLog
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelLog {
			a.Value = slog.StringValue("LOG")
		}
	}
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Nop discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Log emits a record at LevelLog.
func Log(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelLog, msg, args...)
}

func InitFromEnv() {
	lvl := os.Getenv("CODESHIFT_LOG_LEVEL")
	jsonStr := os.Getenv("CODESHIFT_LOG_JSON")
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(jsonStr)); err == nil {
		json = b
	}
	Configure(Options{Level: lvl, JSON: json})
}
