package utils

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GetDefaultLogger returns a console logger at the given level. Unknown
// levels fall back to info.
func GetDefaultLogger(level string) logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	zapLog, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return zapr.NewLogger(zapLog)
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		// logr V(1) maps onto zap level -1
		return zapcore.Level(-1)
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
