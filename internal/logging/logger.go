package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the JSON logger shared by cmd/api and cmd/notifier.
//
// Level is debug in development and info elsewhere; LOG_LEVEL overrides both.
// LOG_FILE, when set, receives a copy of everything written to stdout.
func NewLogger(service, env string) (*zap.Logger, error) {
	level, err := levelFor(env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	outputs := []string{"stdout"}
	if path := os.Getenv("LOG_FILE"); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("log file dir: %w", err)
		}
		outputs = append(outputs, path)
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      outputs,
		ErrorOutputPaths: outputs,
		Sampling:         &zap.SamplingConfig{Initial: 100, Thereafter: 100},
		InitialFields: map[string]any{
			"service": service,
			"env":     env,
		},
	}
	return cfg.Build()
}

func MustNewLogger(service, env string) *zap.Logger {
	l, err := NewLogger(service, env)
	if err != nil {
		panic(err)
	}
	return l
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.MessageKey = "msg"
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}

func levelFor(env, override string) (zapcore.Level, error) {
	if override != "" {
		l, err := zapcore.ParseLevel(override)
		if err != nil {
			return l, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		return l, nil
	}
	if env == "development" {
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, nil
}
