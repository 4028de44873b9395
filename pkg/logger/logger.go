package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	sugared *zap.SugaredLogger
	base    *zap.Logger
)

// InitLogger builds the process logger. Console output always goes to stdout;
// when filename is set, JSON lines are appended to that file as well.
func InitLogger(filename string, level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), lvl),
	}

	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	setBase(l)
	return nil
}

// SetLogger replaces the process logger, mostly for tests.
func SetLogger(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	sugared = l
	base = l.Desugar()
}

func setBase(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugared = l.Sugar()
}

// L returns the current logger, creating a development logger on first use.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := sugared
	mu.RUnlock()
	if l != nil {
		return l
	}
	dev, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		dev = zap.NewNop()
	}
	setBase(dev)
	return L()
}

// Close flushes buffered entries.
func Close() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

func Info(args ...interface{}) {
	L().Info(args...)
}

func Infof(format string, v ...interface{}) {
	L().Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	L().Debugf(format, v...)
}

func Error(args ...interface{}) {
	L().Error(args...)
}

func Errorf(format string, v ...interface{}) {
	L().Errorf(format, v...)
}

func Warn(args ...interface{}) {
	L().Warn(args...)
}

func Warnf(format string, v ...interface{}) {
	L().Warnf(format, v...)
}

// With returns a child logger carrying the given key/value pairs.
func With(kv ...interface{}) *zap.SugaredLogger {
	return L().With(kv...)
}
