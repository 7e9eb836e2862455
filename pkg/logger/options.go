package logger

import "go.uber.org/zap"

type Option = zap.Option

// AddCaller 输出调用位置
func AddCaller() Option {
	return zap.AddCaller()
}

// AddCallerSkip 跳过封装层数
func AddCallerSkip(skip int) Option {
	return zap.AddCallerSkip(skip)
}

// AddStacktrace 指定级别及以上输出堆栈
func AddStacktrace(level Level) Option {
	return zap.AddStacktrace(toZapLevel(level))
}

// WithFields 所有日志都附带的字段
func WithFields(fields ...Field) Option {
	return zap.Fields(fields...)
}
