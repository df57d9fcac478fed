// Package logger is the structured logging surface used by every panel_bridge
// component. Values are passed as alternating keys and values:
//
//	log.Info("job claimed", "job_id", id, "kind", kind)
//
// The default implementation writes JSON lines through log/slog. Setting
// ENV=development switches to a colored console handler.
package logger

import "strings"

// Level is the minimum severity a logger emits.
type Level = int8

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
	// FatalLevel logs and then exits the process.
	FatalLevel
)

// Logger is implemented by SlogLogger and MockLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs at error severity and calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With returns a child logger carrying the given fields on every record.
	With(keyValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}

// ParseLevel maps a config string to a Level. Unknown names fall back to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
