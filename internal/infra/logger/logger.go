// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	App     string    // Added as the "app" field when set
	Output  string    // "stdout", "stderr", or "file"
	Level   string    // "debug", "info", "warn", "error"
	File    string    // log file path (used when Output is "file")
	NoColor bool      // disable console colors
	Writer  io.Writer // overrides Output when set
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init initializes the global zerolog logger with the given configuration.
// The returned closer releases the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(logger.GetLevel())
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return closer, nil
}

// New builds a logger without touching the global one.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)

	var writer io.Writer
	var closer io.Closer = nopCloser{}
	console := true
	switch {
	case cfg.Writer != nil:
		writer = cfg.Writer
	case strings.EqualFold(cfg.Output, "stdout"), cfg.Output == "":
		writer = os.Stdout
	case strings.EqualFold(cfg.Output, "stderr"):
		writer = os.Stderr
	default:
		path := cfg.File
		if path == "" {
			path = cfg.Output
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "failed to open log file %s", path)
		}
		writer, closer = f, f
		console = false
	}

	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	// Use ConsoleWriter for stdout/stderr (color output), JSON for files
	if console && cfg.Writer == nil {
		cw := zerolog.ConsoleWriter{
			Out:        writer,
			NoColor:    cfg.NoColor,
			TimeFormat: time.TimeOnly,
		}
		if level <= zerolog.DebugLevel {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i any) string {
				return "(" + i.(string) + ")"
			}
		}
		writer = cw
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	// Caller only for DEBUG level
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer, nil
}

// ParseLevel parses the log level string. Unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return zerolog.WarnLevel
	case "":
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// shortCaller keeps the parent directory and file name.
func shortCaller(pc uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
