// internal/logger/logger.go
package logger

import (
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	LogFile     string
	MaxSize     int // megabytes
	MaxAge      int // days
	MaxBackups  int
	Compress    bool
	Development bool
}

func DefaultConfig() *Config {
	return &Config{
		LogFile:     "sniper.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
	}
}

// Logger wraps zap.Logger with trade-engine helpers.
type Logger struct {
	*zap.Logger
	config *Config
}

// New builds a logger that writes a console stream to stdout and JSON
// to a rotated log file.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logRotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	level := zapcore.InfoLevel
	if cfg.Development {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(logRotator), level),
	)

	logger := &Logger{
		Logger: zap.New(core,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
		config: cfg,
	}

	return logger, nil
}

// Operation returns a child logger for a single operation, stamped
// with a fresh correlation id so the handling of one candidate or
// position can be traced across components.
func Operation(l *zap.Logger, operation string) *zap.Logger {
	return l.With(
		zap.String("operation", operation),
		zap.String("correlation_id", uuid.New().String()),
		zap.Time("start_time", time.Now().UTC()),
	)
}

// Sync flushes buffered entries, swallowing the stdout sync errors
// that some platforms report.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if err != nil && (err.Error() == "sync /dev/stdout: invalid argument" ||
		err.Error() == "sync /dev/stderr: inappropriate ioctl for device") {
		return nil
	}
	return err
}
