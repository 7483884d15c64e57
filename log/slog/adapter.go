// Package slog provides a logger that writes
// to a log/slog.Logger and implements the
// github.com/streamwire/rsocket/log.Logger interface.
package slog

import (
	"context"
	"fmt"

	"log/slog"
)

type LogLevel = int

// Log level constants matching the ones in golang.ngrok.com/ngrok/log
const (
	LogLevelTrace = 6
	LogLevelDebug = 5
	LogLevelInfo  = 4
	LogLevelWarn  = 3
	LogLevelError = 2
	LogLevelNone  = 1
)

// Wrapper for a slog.Logger to add the rsocket log.Logger interface.
// The wrapped *slog.Logger is held in an unexported field and is not
// reachable from outside the package.
type Logger struct {
	inner *slog.Logger
}

func NewLogger(l *slog.Logger) *Logger {
	return &Logger{l}
}

func (l *Logger) Log(ctx context.Context, level LogLevel, msg string, data map[string]interface{}) {
	var logError error
	var errorKey string
	// The stdlib slog `Error` method takes the error as an ordinary
	// key/value pair. Look through our log args and see if one was
	// provided, and move it to the end of the args.
	if level == LogLevelError {
		for k, v := range data {
			if err, ok := v.(error); ok {
				logError = err
				errorKey = k
				break
			}
		}
		if logError != nil {
			delete(data, errorKey)
		}
	}

	logArgs := make([]interface{}, 0, len(data))
	for k, v := range data {
		logArgs = append(logArgs, k, v)
	}

	switch level {
	case LogLevelTrace:
		l.inner.Debug(msg, append(logArgs, "LOG_LEVEL", level)...)
	case LogLevelDebug:
		l.inner.Debug(msg, logArgs...)
	case LogLevelInfo:
		l.inner.Info(msg, logArgs...)
	case LogLevelWarn:
		l.inner.Warn(msg, logArgs...)
	case LogLevelError:
		if logError != nil {
			logArgs = append(logArgs, errorKey, logError)
		}
		l.inner.Error(msg, logArgs...)
	default:
		l.inner.Error(msg, append(logArgs, "error", fmt.Errorf("INVALID LOG LEVEL: %d", level))...)
	}
}
