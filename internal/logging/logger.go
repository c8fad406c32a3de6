package logging

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	// BufferSize is the number of entries kept for GET /api/logs.
	BufferSize int `toml:"buffer_size"`
}

// module is one named logger and the level it filters at.
type module struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mutex       sync.RWMutex
	config      = Config{Format: "text"}
	initialized bool
	modules     = make(map[string]*module)
	globalLevel = &slog.LevelVar{}
	logBuffer   *RingBuffer
	logCallback LogCallback
)

// Initialize applies config to the default logger and to every module
// logger, including the ones handed out before this call.
func Initialize(cfg Config) {
	mutex.Lock()
	defer mutex.Unlock()

	config = cfg
	initialized = true
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	logBuffer = NewRingBuffer(cfg.BufferSize)

	globalLevel.Set(parseLevelOr(cfg.Level, slog.LevelInfo))
	for name, m := range modules {
		m.level.Set(levelForLocked(name))
		// Early loggers lack the journal and buffer handlers.
		m.logger = newModuleLogger(name, cfg.Format, m.level)
	}
	slog.SetDefault(slog.New(createHandler(cfg.Format, globalLevel)))
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns the logger of module, creating it on first use.
// Every record carries a "module" attribute.
func GetLogger(name string) *slog.Logger {
	mutex.RLock()
	m, ok := modules[name]
	mutex.RUnlock()
	if ok {
		return m.logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if m, ok := modules[name]; ok {
		return m.logger
	}
	level := &slog.LevelVar{}
	level.Set(levelForLocked(name))
	m = &module{level: level, logger: newModuleLogger(name, config.Format, level)}
	modules[name] = m
	return m.logger
}

// SetModuleLevel changes the level of one module at runtime. Loggers
// already handed out follow the change.
func SetModuleLevel(name, level string) error {
	l, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}
	GetLogger(name)

	mutex.Lock()
	defer mutex.Unlock()
	modules[name].level.Set(l)
	if config.Modules == nil {
		config.Modules = make(map[string]string)
	} else {
		config.Modules = maps.Clone(config.Modules)
	}
	config.Modules[name] = strings.ToLower(level)
	return nil
}

// ModuleLevels returns the current level of every module logger.
func ModuleLevels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	levels := make(map[string]string, len(modules))
	for name, m := range modules {
		levels[name] = levelToString(m.level.Level())
	}
	return levels
}

// ModuleNames returns the names of all module loggers, sorted.
func ModuleNames() []string {
	mutex.RLock()
	defer mutex.RUnlock()
	return slices.Sorted(maps.Keys(modules))
}

// levelForLocked resolves the configured level of a module.
func levelForLocked(name string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	if l, ok := parseLevel(config.Modules[name]); ok {
		return l
	}
	return parseLevelOr(config.Level, slog.LevelInfo)
}

func newModuleLogger(name, format string, level slog.Leveler) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", name)
}

// createHandler fans out to stdout, the journal when present, and the
// ring buffer that feeds the log API.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable is false when stdout is closed or /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

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
	}
	return 0, false
}

func parseLevelOr(level string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(level); ok {
		return l
	}
	return fallback
}
