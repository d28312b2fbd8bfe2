package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/narwhalmedia/segload/internal/config"
)

// New creates a new logger instance based on configuration.
// Console output goes to stderr; when cfg.File is set, JSON lines are also
// written to a size-rotated file.
func New(service config.ServiceConfig, cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if service.Environment != "production" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.CallerKey = "caller"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	if cfg.Format == "json" {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		colored := encoderConfig
		colored.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(colored)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service", service.Name),
			zap.String("env", service.Environment),
		),
	)

	// Add hostname if available
	if hostname, err := os.Hostname(); err == nil {
		logger = logger.With(zap.String("hostname", hostname))
	}

	return logger, nil
}

// WithTask creates a logger carrying the task identity fields.
func WithTask(logger *zap.Logger, taskID, url string) *zap.Logger {
	fields := []zap.Field{}

	if taskID != "" {
		fields = append(fields, zap.String("task_id", taskID))
	}

	if url != "" {
		fields = append(fields, zap.String("url", url))
	}

	if len(fields) > 0 {
		return logger.With(fields...)
	}

	return logger
}
