package config

import (
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AntonStoeckl/specquery-go/specquery/zapadapters"
)

// NewLogger builds a JSON zap logger at the configured level.
func (c *Config) NewLogger() (*zapadapters.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return zapadapters.NewLogger(logger), nil
}
