package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared logger. mode selects the encoder ("prod" for JSON,
// anything else for console) and level is one of debug, info, warn, error.
func New(mode, level string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l.Sugar(), nil
}

// Nop returns a logger that discards everything. Used by tests and library callers.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}
