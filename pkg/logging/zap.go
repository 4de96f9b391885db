package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig selects level and encoding of the zap backend
type ZapConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// NewZapLogger builds the process-wide zap logger
func NewZapLogger(config ZapConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	switch strings.ToLower(config.Format) {
	case "", "console":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unsupported log format: %s", config.Format)
	}

	level := config.Level
	if level == "" {
		level = "info"
	}
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapConfig.Level = atomicLevel

	return zapConfig.Build()
}

// FromZap adapts a zap logger to Logger, prefixing messages with prefix
func FromZap(zapLogger *zap.Logger, prefix string) Logger {
	sugar := zapLogger.WithOptions(zap.AddCallerSkip(2)).Sugar()
	return NewLogger(prefix, LogFuncs{
		Debugf: sugar.Debugf,
		Infof:  sugar.Infof,
		Warnf:  sugar.Warnf,
		Errorf: sugar.Errorf,
	})
}
