package logger

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	JSON  bool   `yaml:"json,omitempty"`
	Level string `yaml:"level,omitempty"`
	// PionLevel controls how much of pion's internal logging is forwarded
	PionLevel string `yaml:"pion_level,omitempty"`
}

var (
	// pion/webrtc, pion/ice
	defaultFactory logging.LoggerFactory
)

func LoggerFactory() logging.LoggerFactory {
	mu.RLock()
	defer mu.RUnlock()
	if defaultFactory == nil {
		return logging.NewDefaultLoggerFactory()
	}
	return defaultFactory
}

func SetLoggerFactory(lf logging.LoggerFactory) {
	mu.Lock()
	defaultFactory = lf
	mu.Unlock()
}

func InitFromConfig(conf Config, name string) {
	var zc zap.Config
	if conf.JSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	level := parseLevel(conf.Level, zapcore.InfoLevel)
	zc.Level = zap.NewAtomicLevelAt(level)

	zl, err := zc.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	l := NewZapLogger(zl, level).WithName(name)
	SetLogger(l)
	SetLoggerFactory(NewPionLoggerFactory(l, parseLevel(conf.PionLevel, zapcore.WarnLevel)))
}

// valid levels: debug, info, warn, error, fatal, panic
func parseLevel(level string, fallback zapcore.Level) zapcore.Level {
	if level == "" {
		return fallback
	}
	lvl := zapcore.Level(0)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fallback
	}
	return lvl
}
