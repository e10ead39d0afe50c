package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Logger - обертка над zap.SugaredLogger.
// Поддерживает printf-стиль (Info, Error) и key-value стиль (Infow, Errorw).
type Logger struct {
	sugar *zap.SugaredLogger
	level LogLevel
}

// New создает логгер, пишущий JSON в stdout.
func New(level LogLevel) *Logger {
	return NewWithOutput(level, os.Stdout, true)
}

// NewDevelopment создает логгер с человекочитаемым выводом в консоль.
func NewDevelopment(level LogLevel) *Logger {
	return NewWithOutput(level, os.Stdout, false)
}

// NewWithOutput создает логгер с произвольным writer'ом (удобно в тестах).
func NewWithOutput(level LogLevel, output io.Writer, jsonEncoding bool) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if jsonEncoding {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), zapLevel(level))
	// Skip 1 frame so the caller of Infow/Errorw is reported, not this file
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{
		sugar: z.Sugar(),
		level: level,
	}
}

// Nop возвращает логгер, который ничего не пишет.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), level: FATAL}
}

// ParseLevel converts "debug", "info", ... into a LogLevel. Unknown values map to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Level возвращает текущий уровень логгера.
func (l *Logger) Level() LogLevel {
	return l.level
}

// With возвращает дочерний логгер с постоянными полями.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), level: l.level}
}

// Zap отдает нижележащий *zap.Logger для библиотек, которым он нужен.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Sync сбрасывает буферы. Вызывается при завершении приложения.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.sugar.Fatalf(format, v...)
}

func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatalw(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}
