package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "cmsg_cli.log"

const (
	maxLogSizeMB  = 5
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// Options configure the logger.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // "text" or "json" (default json)
	LogFile string // empty means ~/.cmsg_cli/logs/cmsg_cli.log
	Verbose bool   // mirror debug-level text logs to stderr
}

// Init configures slog to write structured logs to a rotating file and sets
// the process default logger.
func Init(opts Options) (*slog.Logger, error) {
	level := parseLogLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOptions := &slog.HandlerOptions{Level: level}

	logPath := strings.TrimSpace(opts.LogFile)
	if logPath == "" {
		logPath = defaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		logger := slog.New(newHandler(opts.Format, io.Discard, handlerOptions))
		slog.SetDefault(logger)
		return logger, err
	}

	var writer io.Writer = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	format := opts.Format
	if opts.Verbose {
		writer = io.MultiWriter(os.Stderr, writer)
		format = "text"
	}

	logger := slog.New(newHandler(format, writer, handlerOptions))
	slog.SetDefault(logger)
	return logger, nil
}

func defaultLogPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(homeDir) == "" {
		return filepath.Join(".cmsg_cli", "logs", defaultLogFile)
	}
	return filepath.Join(homeDir, ".cmsg_cli", "logs", defaultLogFile)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.NewTextHandler(out, opts)
	default:
		return slog.NewJSONHandler(out, opts)
	}
}
