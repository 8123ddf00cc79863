// Package logging provides category-scoped zap loggers for the controller.
// Every subsystem logs through its own named child so log lines can be
// filtered per concern.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// #region categories

// Category names a logging subsystem.
type Category string

const (
	CategoryRuntime   Category = "runtime"
	CategoryPerformer Category = "performer"
	CategoryAnalyst   Category = "analyst"
	CategoryVeto      Category = "veto"
	CategoryValidator Category = "validator"
	CategoryRalph     Category = "ralph"
	CategoryPersist   Category = "persist"
	CategoryCommander Category = "commander"
)

// #endregion categories

// #region setup

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init installs the process-wide root logger. debug selects the development
// console encoder; production gets JSON.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		l, err = cfg.Build()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	SetRoot(l)
	return nil
}

// SetRoot replaces the root logger. Tests inject zaptest loggers here.
func SetRoot(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

// For returns the named child logger for a category.
func For(c Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(c))
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// #endregion setup
