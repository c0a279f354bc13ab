// Package logging provides the process-wide structured logger used by every
// other package in bay. It mirrors the way the teacher wires zap: a single
// package-level sugared logger, reconfigurable at startup from a verbosity
// flag or the LOG_LEVEL environment variable.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = build()
)

func build() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Logging must never be the reason bay fails to start.
		return zap.NewNop()
	}
	return l
}

// S returns the current sugared logger.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Sugar()
}

// L returns the current structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLevel adjusts the minimum level logged by every logger handed out so far.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// With returns a sugared logger enriched with the given key/value pairs,
// used by components (reconciler, dockerhost) that want to tag every line
// with an instance or host name.
func With(args ...interface{}) *zap.SugaredLogger {
	return S().With(args...)
}
