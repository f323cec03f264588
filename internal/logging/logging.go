// Package logging builds the structured logger shared by wcmerge commands.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/danieljhkim/wcmerge/internal/config"
)

// Options select where and how much to log.
type Options struct {
	// File is the log file; empty disables file logging
	File string

	Settings config.LogSettings

	// Debug adds a debug-level console core writing to Console
	Debug   bool
	Console io.Writer
}

// New builds a logger writing JSON lines to a rotated file and, in debug
// mode, human-readable lines to the console.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Settings.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Settings.Level, err)
	}

	var cores []zapcore.Core
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.Settings.MaxSizeMB,
			MaxBackups: opts.Settings.MaxBackups,
			MaxAge:     opts.Settings.MaxAgeDays,
		}
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	if opts.Debug && opts.Console != nil {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(opts.Console), zapcore.DebugLevel))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}
