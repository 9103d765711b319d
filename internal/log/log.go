// Package log holds the process-wide zap logger used by the binaries.
// Library packages take a *zap.SugaredLogger instead of importing this.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base *zap.Logger

	// helpers skips one frame so entries point at the caller of Info etc.
	helpers *zap.SugaredLogger
)

// Init builds the process logger. Debug mode uses the console encoder and
// keeps stack traces on warnings.
func Init(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = !debug

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	set(l)
	return nil
}

func set(l *zap.Logger) {
	base = l
	helpers = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// GetZapLogger returns the base zap logger for cases where it's needed (like GORM)
func GetZapLogger() *zap.Logger {
	if base == nil {
		l, _ := zap.NewProduction()
		set(l)
	}
	return base
}

// GetSugaredLogger returns a sugared view of the base logger for injection
// into library packages.
func GetSugaredLogger() *zap.SugaredLogger {
	return GetZapLogger().Sugar()
}

// Sync flushes any buffered log entries
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}

func Info(args ...interface{}) {
	GetZapLogger()
	helpers.Info(args...)
}

func Warnf(template string, args ...interface{}) {
	GetZapLogger()
	helpers.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	GetZapLogger()
	helpers.Errorf(template, args...)
}
