// Package logger provides a small wrapper around slog. Output only ever goes to
// stderr so it cannot corrupt the status line printed on stdout.
package logger

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// Logger is the global logger instance. It discards everything until debug
// output is switched on.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// DebugEnabled reports whether CC_DEBUG or DEBUG is set to a truthy value.
func DebugEnabled() bool {
	for _, key := range []string{"CC_DEBUG", "DEBUG"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "", "0", "false", "no", "off":
			continue
		default:
			return true
		}
	}
	return false
}

// SetDebug routes debug-level output to w, or silences the logger when enabled is false.
func SetDebug(enabled bool, w io.Writer) {
	if !enabled {
		Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}
	if w == nil {
		w = os.Stderr
	}
	Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SafeURL strips the query string so identifiers never reach the logs.
func SafeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[invalid-url]"
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.User = nil
	return u.String()
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}
