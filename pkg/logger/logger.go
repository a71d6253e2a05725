package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
)

type Config struct {
	Level       string // debug | info | warn | error
	Development bool
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// New builds the process logger and installs it as the global Info/Fatal logger.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl := zap.InfoLevel
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	l = l.With(zap.String("service", serviceName))

	InfoLogger = l
	FatalLogger = l
	return l, nil
}

func Info(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	InfoLogger.Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	InfoLogger.Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	InfoLogger.Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic("FatalLogger is not initialized")
	}

	FatalLogger.Fatal(fmt.Sprintf(format, args...))
}
