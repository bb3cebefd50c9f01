package infra

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger собирает zap-логгер по секции logger конфига.
// Некорректный уровень или формат не роняют процесс — откатываемся на info/json.
func NewLogger(cfg LoggerConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := zcfg.Build()
	if err != nil {
		// Build падает только на битом конфиге энкодера; дефолт всегда валиден
		return zap.NewNop()
	}
	return logger
}
