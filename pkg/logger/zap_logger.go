package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encoding 日志输出格式
type Encoding string

const (
	ConsoleEncoding Encoding = "console" // [ts] [LEVEL] [caller] msg {fields}
	JSONEncoding    Encoding = "json"    // 每行一个 JSON 对象，便于日志采集
)

// ParseEncoding 解析配置中的格式名称，空值为 console
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case "", ConsoleEncoding:
		return ConsoleEncoding, nil
	case JSONEncoding:
		return e, nil
	}
	return ConsoleEncoding, fmt.Errorf("unknown log encoding %q", s)
}

// ZapLogger 基于 zap 的 Logger 实现，格式化方法走 SugaredLogger
type ZapLogger struct {
	l     *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// New 创建 console 格式的日志，out 为 nil 时写标准错误
func New(out io.Writer, level Level, opts ...Option) *ZapLogger {
	return NewWithEncoding(out, level, ConsoleEncoding, opts...)
}

// NewWithEncoding 创建指定格式的日志
func NewWithEncoding(out io.Writer, level Level, encoding Encoding, opts ...Option) *ZapLogger {
	if out == nil {
		out = os.Stderr
	}
	al := zap.NewAtomicLevelAt(toZapLevel(level))

	var enc zapcore.Encoder
	if encoding == JSONEncoding {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		enc = GetEncoder()
	}
	return wrap(zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), al), opts...), al)
}

func wrap(l *zap.Logger, al zap.AtomicLevel) *ZapLogger {
	return &ZapLogger{l: l, sugar: l.Sugar(), level: al}
}

// toZapLevel 跳过 zap 的 DPanic 级别
func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case PanicLevel:
		return zapcore.PanicLevel
	case FatalLevel:
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

const defaultTimeFormat = "2006-01-02 15:04:05"

// GetEncoder console 格式，各部分用方括号包住
func GetEncoder() zapcore.Encoder {
	bracket := func(s string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + s + "]")
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller_line",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			bracket(l.CapitalString(), enc)
		},
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			bracket(t.Format(defaultTimeFormat), enc)
		},
		EncodeCaller: func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			bracket(c.TrimmedPath(), enc)
		},
	})
}

func (l *ZapLogger) SetLevel(level Level) {
	l.level.SetLevel(toZapLevel(level))
}

// Enabled 级别是否会输出，调用方可以据此跳过字段构造
func (l *ZapLogger) Enabled(level Level) bool {
	return l.level.Enabled(toZapLevel(level))
}

// With 返回附带固定字段的子日志，与父日志共享级别
func (l *ZapLogger) With(fields ...Field) *ZapLogger {
	return wrap(l.l.With(fields...), l.level)
}

// Named 返回带名称的子日志
func (l *ZapLogger) Named(name string) *ZapLogger {
	return wrap(l.l.Named(name), l.level)
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *ZapLogger) Panic(msg string, fields ...Field) { l.l.Panic(msg, fields...) }
func (l *ZapLogger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

func (l *ZapLogger) Debugf(format string, v ...interface{}) { l.sugar.Debugf(format, v...) }
func (l *ZapLogger) Infof(format string, v ...interface{})  { l.sugar.Infof(format, v...) }
func (l *ZapLogger) Warnf(format string, v ...interface{})  { l.sugar.Warnf(format, v...) }
func (l *ZapLogger) Errorf(format string, v ...interface{}) { l.sugar.Errorf(format, v...) }
func (l *ZapLogger) Panicf(format string, v ...interface{}) { l.sugar.Panicf(format, v...) }
func (l *ZapLogger) Fatalf(format string, v ...interface{}) { l.sugar.Fatalf(format, v...) }

func (l *ZapLogger) Sync() error {
	return l.l.Sync()
}
