package logging

import (
	"github.com/phuslu/log"
)

func CreateDebugLogger() *log.Logger {
	return &log.Logger{
		Level:  log.DebugLevel,
		Caller: 0,
		Writer: &log.ConsoleWriter{
			ColorOutput:    false,
			EndWithMessage: true,
		},
	}
}

// CreateLogger builds a console logger at the given level. The checker
// emits page/tuple traces at debug level, so running with log.WarnLevel
// keeps the output down to the findings themselves.
func CreateLogger(level log.Level) *log.Logger {
	return &log.Logger{
		Level:  level,
		Caller: 0,
		Writer: &log.ConsoleWriter{
			ColorOutput:    false,
			EndWithMessage: true,
		},
	}
}
