// Package logging wraps log/slog the way internal/logger/logger.go
// wraps it in the teacher repo, extended with a log/syslog backend so
// diagnostics land in LOG_USER under the identifiers spec.md §6 names.
// log/syslog is used directly from the standard library: spec.md §1
// lists "syslog plumbing" as an explicit out-of-scope external
// collaborator, so there is no ecosystem client to reach for here, only
// a transport to dial.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
)

// Log is the process-wide logger, set by Init.
var Log *slog.Logger

// Identifier names the two binaries per spec.md §6.
type Identifier string

const (
	IdentServer Identifier = "vsock-shell-server"
	IdentClient Identifier = "vsock-shell-client"
)

// Init builds the process logger. level is one of debug/info/warn/error.
// When useSyslog is true, diagnostics are additionally written to
// LOG_USER under ident; a failure to dial syslog is non-fatal and falls
// back to stderr-only, since syslog.New returning an error usually means
// no syslog daemon is reachable (e.g. inside a minimal guest rootfs).
func Init(level string, useSyslog bool, ident Identifier) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stderr}
	if useSyslog {
		w, err := syslog.New(syslog.LOG_USER|syslog.LOG_INFO, string(ident))
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: syslog unavailable, logging to stderr only: %v\n", err)
		} else {
			writers = append(writers, w)
		}
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: logLevel})
	Log = slog.New(handler).With("ident", string(ident))
	slog.SetDefault(Log)
	return nil
}

// Fatal logs at error level, writes the same message to stderr, and
// exits 1 — spec.md §7's Fatal error class.
func Fatal(msg string, args ...any) {
	Log.Error(msg, args...)
	fmt.Fprintln(os.Stderr, "fatal:", msg)
	os.Exit(1)
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }
