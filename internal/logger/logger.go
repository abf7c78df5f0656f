// Package logger builds the zap loggers used across marketlens.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry as the "service" field.
const Service = "marketlens"

// Options select the zap preset and overrides.
type Options struct {
	Development bool
	// Level is a zap level name such as "debug" or "warn". Empty keeps the
	// preset's level.
	Level string
	// Encoding is "json" or "console". Empty keeps the preset's encoding.
	Encoding string
}

// Build creates a development (colour console) or production (JSON)
// logger from opts.
func Build(opts Options) (*zap.Logger, error) {
	var cfg zap.Config

	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	switch opts.Encoding {
	case "":
	case "json", "console":
		cfg.Encoding = opts.Encoding
		if opts.Encoding == "json" {
			cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		}
	default:
		return nil, fmt.Errorf("log encoding %q: want json or console", opts.Encoding)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", Service)), nil
}
