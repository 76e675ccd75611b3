// Package log provides the structured logger used throughout the node.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across the node. It mirrors a
// zap.SugaredLogger closely enough that call sites read like normal
// key/value logging, while staying swappable for tests.
type Logger interface {
	Info(keyvals ...interface{})
	Debug(keyvals ...interface{})
	Warn(keyvals ...interface{})
	Error(keyvals ...interface{})
	Fatal(keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Debugw(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	With(args ...interface{}) Logger
	Named(s string) Logger
}

type log struct {
	*zap.SugaredLogger
}

func (l *log) With(args ...interface{}) Logger {
	return &log{l.SugaredLogger.With(args...)}
}

func (l *log) Named(s string) Logger {
	return &log{l.SugaredLogger.Named(s)}
}

const (
	InfoLevel  = int(zapcore.InfoLevel)
	DebugLevel = int(zapcore.DebugLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
)

// DefaultLevel is used by DefaultLogger before any explicit configuration.
var DefaultLevel = InfoLevel

var once sync.Once
var defaultLogger Logger

// DefaultLogger lazily builds a JSON logger to stdout at DefaultLevel.
func DefaultLogger() Logger {
	once.Do(func() {
		defaultLogger = New(os.Stdout, DefaultLevel, true)
	})
	return defaultLogger
}

// New builds a logger writing to output at the given level, optionally
// JSON-encoded (the rolling file sink in production is JSON; console
// output during development is not).
func New(output zapcore.WriteSyncer, level int, isJSON bool) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if isJSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, output, zapcore.Level(level))
	zl := zap.New(core, zap.WithCaller(true), zap.AddCallerSkip(1))
	return &log{zl.Sugar()}
}

// NewRollingFile builds a logger that writes JSON lines to path, rotating
// when it exceeds maxSizeMB (the config.Logger.RollingFileSize knob).
func NewRollingFile(path string, maxSizeMB int, level int) (Logger, error) {
	w, err := newRollingWriter(path, maxSizeMB)
	if err != nil {
		return nil, err
	}
	return New(w, level, true), nil
}
