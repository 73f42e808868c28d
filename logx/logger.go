package logx

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Logger 对外暴露给业务 / 组件使用的接口
type Logger interface {
	Debug(ctx context.Context, tag string, msg any, kv ...any)
	Info(ctx context.Context, tag string, msg any, kv ...any)
	Warn(ctx context.Context, tag string, msg any, kv ...any)
	Error(ctx context.Context, tag string, msg any, kv ...any)
}

type loggerImpl struct {
	slog *slog.Logger
}

// log 之上的栈层数：Info/Debug 一层 + 调用方一层
const methodSkip = 2

func (l *loggerImpl) Debug(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, methodSkip, slog.LevelDebug, tag, msg, kv...)
}

func (l *loggerImpl) Info(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, methodSkip, slog.LevelInfo, tag, msg, kv...)
}

func (l *loggerImpl) Warn(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, methodSkip, slog.LevelWarn, tag, msg, kv...)
}

func (l *loggerImpl) Error(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, methodSkip, slog.LevelError, tag, msg, kv...)
}

func (l *loggerImpl) log(ctx context.Context, skip int, level slog.Level, tag string, msg any, kv ...any) {
	if l == nil || l.slog == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slog.Enabled(ctx, level) {
		return
	}
	rec := slog.NewRecord(time.Now(), level, "", 0)
	rec.AddAttrs(encodeLog(ctx, getCaller(skip), tag, msg, kv...)...)
	_ = l.slog.Handler().Handle(ctx, rec)
}

// New 创建一个独立的 Logger
func New(cfg Config) (Logger, error) {
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{slog: slog.New(h)}, nil
}

// NewWithWriter 同步写 w，不落文件
func NewWithWriter(w io.Writer, level slog.Level) Logger {
	h, _ := newHandler(Config{Writer: w, Level: level})
	return &loggerImpl{slog: slog.New(h)}
}

// -------------------- 全局默认 logger --------------------

var defaultLogger atomic.Pointer[loggerImpl]

// Init 根据 Config 初始化全局 logger，main 里调用一次
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	defaultLogger.Store(l.(*loggerImpl))
	return nil
}

// L 返回全局 logger，未 Init 时为 nil
func L() Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return nil
}

// 包级函数直接调 log，层数与方法相同
const funcSkip = methodSkip

func Debug(ctx context.Context, tag string, msg any, kv ...any) {
	defaultLogger.Load().log(ctx, funcSkip, slog.LevelDebug, tag, msg, kv...)
}

func Info(ctx context.Context, tag string, msg any, kv ...any) {
	defaultLogger.Load().log(ctx, funcSkip, slog.LevelInfo, tag, msg, kv...)
}

func Warn(ctx context.Context, tag string, msg any, kv ...any) {
	defaultLogger.Load().log(ctx, funcSkip, slog.LevelWarn, tag, msg, kv...)
}

func Error(ctx context.Context, tag string, msg any, kv ...any) {
	defaultLogger.Load().log(ctx, funcSkip, slog.LevelError, tag, msg, kv...)
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, any, ...any) {}
func (nopLogger) Info(context.Context, string, any, ...any)  {}
func (nopLogger) Warn(context.Context, string, any, ...any)  {}
func (nopLogger) Error(context.Context, string, any, ...any) {}

// Nop 丢弃一切日志
func Nop() Logger { return nopLogger{} }
