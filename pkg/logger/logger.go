package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger for the given environment.
// Production emits JSON with ISO8601 timestamps; anything else emits colored console output.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewNamed builds a logger tagged with the service name.
func NewNamed(env, service string) (*zap.Logger, error) {
	l, err := New(env)
	if err != nil {
		return nil, err
	}
	return l.Named(service).With(zap.String("service", service)), nil
}
