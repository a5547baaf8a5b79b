// Package logging installs a process-wide zap logger, configured from
// internal/config, following the pack's zap+lumberjack wiring style.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tangerg-labs/deepresearch/internal/config"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Setup initializes the package-level logger from the given config. Safe to
// call multiple times; only the first call takes effect.
func Setup(cfg *config.LogConfig) *zap.Logger {
	once.Do(func() {
		logger = build(cfg)
	})
	return logger
}

func build(cfg *config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg != nil {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if cfg != nil && cfg.Env == "development" {
		devCfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(devCfg)
	}

	var cores []zapcore.Core
	if cfg != nil && cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}
	if cfg != nil && cfg.FilePath != "" {
		if dir := filepath.Dir(cfg.FilePath); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// L returns the process-wide logger, falling back to a no-op logger
// if Setup was never called (e.g. in unit tests).
func L() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
