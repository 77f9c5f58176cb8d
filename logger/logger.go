// Package logger provides the process-wide structured logger.
package logger

import (
	"go.uber.org/zap"
)

// L is the global logger, safe to use before Init as a no-op
var L = zap.NewNop()

// Init builds the global logger. Development mode enables console
// encoding and debug level.
func Init(development bool) error {
	var (
		l   *zap.Logger
		err error
	)

	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}

	L = l
	return nil
}

// Sync flushes buffered log entries; call on shutdown
func Sync() {
	_ = L.Sync()
}
