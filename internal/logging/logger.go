package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Identifier tags every record sent to the systemd journal.
const Identifier = "browserpool"

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Core packages accept this instead of *slog.Logger so tests can pass any sink.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex           sync.RWMutex
	globalConfig    Config
	isInitialized   bool
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalLevelVar  = &slog.LevelVar{}

	// sink receives every record that passed its module's level check.
	sink atomic.Pointer[slog.Handler]
)

func init() {
	h := buildSink("text", os.Stdout)
	sink.Store(&h)
}

// Initialize sets up the logging system. Loggers handed out before
// Initialize keep working: their levels are updated in place and their
// output follows the new format.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	h := buildSink(config.Format, os.Stdout)
	sink.Store(&h)

	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
	}

	slog.SetDefault(slog.New(&dynamicHandler{level: globalLevelVar}))
}

// SetOutput redirects every logger to w using the configured format.
// Journal output is not used when an explicit writer is set.
func SetOutput(w io.Writer) {
	mutex.RLock()
	format := globalConfig.Format
	mutex.RUnlock()

	var h slog.Handler = newStreamHandler(format, w)
	sink.Store(&h)
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevel(module))

	logger := slog.New(&dynamicHandler{level: levelVar}).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// moduleLevel resolves the effective level for a module (must hold lock).
func moduleLevel(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	level := levelOrDefault(globalConfig.Level, slog.LevelInfo)
	if override, ok := globalConfig.Modules[module]; ok {
		level = levelOrDefault(override, level)
	}
	return level
}

// dynamicHandler filters by its own level and forwards to the current sink,
// replaying any WithAttrs/WithGroup calls made on it.
type dynamicHandler struct {
	level slog.Leveler
	ops   []func(slog.Handler) slog.Handler
}

func (h *dynamicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	target := *sink.Load()
	for _, op := range h.ops {
		target = op(target)
	}
	return target.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *dynamicHandler) with(op func(slog.Handler) slog.Handler) *dynamicHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &dynamicHandler{level: h.level, ops: append(ops, op)}
}

// buildSink creates the output handler chain: stdout (text or json) and the
// systemd journal when it is reachable.
func buildSink(format string, out *os.File) slog.Handler {
	var handlers []slog.Handler
	if isStreamAvailable(out) {
		handlers = append(handlers, newStreamHandler(format, out))
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(Identifier))
	}

	switch len(handlers) {
	case 0:
		return newStreamHandler(format, out)
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

func newStreamHandler(format string, w io.Writer) slog.Handler {
	// Level filtering happens in dynamicHandler.
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// isStreamAvailable checks if f is connected to a terminal, pipe, socket, or file.
func isStreamAvailable(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(level string, fallback slog.Level) slog.Level {
	if parsed, ok := parseLevel(level); ok {
		return parsed
	}
	return fallback
}

// parseLevel converts a level name to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
