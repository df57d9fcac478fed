package logger

import (
	"os"
	"sync"
)

var (
	defaultOnce sync.Once
	defLogger   Logger
)

// GetLogger returns the process wide logger used by components built without
// one. It is created on first use at the level named by LOG_LEVEL.
func GetLogger() Logger {
	defaultOnce.Do(func() {
		defLogger = NewSlog(ParseLevel(os.Getenv("LOG_LEVEL")), false)
	})
	return defLogger
}
