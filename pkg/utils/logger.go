package utils

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// NewSugaredLogger creates a sugared logger based on the verbose flag.
// If verbose is true, it creates a development logger, otherwise a production logger.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create development logger: %w", err)
		}
		return l.Sugar(), nil
	}

	l, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create production logger: %w", err)
	}
	return l.Sugar(), nil
}

var (
	globalLoggerMu          sync.Mutex
	globalLoggerInitialized atomic.Bool
)

// InitGlobalLogger installs a process-wide logger exactly once.
//
// The first call builds a logger with NewSugaredLogger, replaces zap's global
// loggers and redirects the standard library logger to it. Later calls return nil
// without doing anything, whatever their arguments, and only after the global
// logger is installed. If building the logger fails, a later call can retry.
func InitGlobalLogger(verbose bool) error {
	if globalLoggerInitialized.Load() {
		return nil
	}

	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLoggerInitialized.Load() {
		return nil
	}

	sugar, err := NewSugaredLogger(verbose)
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(sugar.Desugar())
	zap.RedirectStdLog(sugar.Desugar())
	globalLoggerInitialized.Store(true)
	return nil
}
