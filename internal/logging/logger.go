package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

var (
	logLevel atomic.Int64
	levelVar = new(slog.LevelVar)
	logger   atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stderr)
	SetLogLevel(Warning)

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		SetLogLevel(ParseLevel(lvl))
	}

	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
}

// ParseLevel maps a level name to its numeric value. Unknown names map to Warning.
func ParseLevel(name string) int {
	switch strings.ToLower(name) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	default:
		return Warning
	}
}

func SetLogLevel(level int) {
	logLevel.Store(int64(level))
	levelVar.Set(toSlogLevel(level))
}

// SetOutput redirects log output, mainly for tests. It is safe to call while
// other goroutines log.
func SetOutput(w io.Writer) {
	logger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})))
}

// Logger returns the underlying structured logger for key/value call sites.
func Logger() *slog.Logger {
	return logger.Load()
}

func toSlogLevel(level int) slog.Level {
	switch {
	case level <= Debug:
		return slog.LevelDebug
	case level <= Info:
		return slog.LevelInfo
	case level <= Warning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func enabled(level int) bool {
	return logLevel.Load() <= int64(level)
}

func Debugf(format string, v ...interface{}) {
	if enabled(Debug) {
		Logger().Debug(fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...interface{}) {
	if enabled(Info) {
		Logger().Info(fmt.Sprintf(format, v...))
	}
}

func Warningf(format string, v ...interface{}) {
	if enabled(Warning) {
		Logger().Warn(fmt.Sprintf(format, v...))
	}
}

func Errorf(format string, v ...interface{}) {
	if enabled(Error) {
		Logger().Error(fmt.Sprintf(format, v...))
	}
}

func Criticalf(format string, v ...interface{}) {
	if enabled(Critical) {
		Logger().Log(context.Background(), slog.LevelError+4, fmt.Sprintf(format, v...))
	}
}

func Fatalf(format string, v ...interface{}) {
	Logger().Log(context.Background(), slog.LevelError+4, fmt.Sprintf(format, v...))
	os.Exit(1)
}
