package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
	name  string
}

// Named returns a child logger. Names nest with a dot.
func (log *Logger) Named(name string) *Logger {
	newName := name
	if log.name != "" {
		newName = fmt.Sprintf("%s.%s", log.name, name)
	}
	return &Logger{
		Logger: log.Logger.Named(name),
		level:  log.level,
		name:   newName,
	}
}

func (log *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		Logger: log.Logger.With(fields...),
		level:  log.level,
		name:   log.name,
	}
}

func (log *Logger) GetName() string {
	return log.name
}

func (log *Logger) SetLevel(l zapcore.Level) {
	log.level.SetLevel(l)
}

// AtExit flushes the logs before exiting the process. This is meant to
// be used with defer when initializing your logger.
func (log *Logger) AtExit() {
	if log.Logger != nil {
		_ = log.Logger.Sync()
	}
}

// NewLoggerFromConfig builds a console logger for "dev" and a JSON logger
// for anything else, optionally teed into a rotating file.
func NewLoggerFromConfig(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	var encoder zapcore.Encoder
	switch cfg.Environment {
	case "dev":
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			CallerKey:      "C",
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			LevelKey:       "L",
			LineEnding:     "\n",
			MessageKey:     "M",
			NameKey:        "N",
			TimeKey:        "T",
		})
	default:
		encoder = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			CallerKey:      "caller",
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeName:     zapcore.FullNameEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			LevelKey:       "level",
			LineEnding:     "\n",
			MessageKey:     "message",
			NameKey:        "logger",
			StacktraceKey:  "stacktrace",
			TimeKey:        "@timestamp",
		})
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		level:  level,
	}, nil
}

// NewTestLogger discards everything. Handy in tests and benchmarks.
func NewTestLogger() *Logger {
	return &Logger{
		Logger: zap.NewNop(),
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}
