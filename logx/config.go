package logx

import (
	"io"
	"log/slog"
)

type RotateMode int

const (
	RotateHourly RotateMode = iota // 按小时切
	RotateSize                     // 按大小切
)

type Config struct {
	AppName string     // 文件名前缀
	Level   slog.Level // 最小级别

	LogDir string

	ConsoleEnabled bool
	ConsoleColored bool

	Rotate        RotateMode
	MaxFileSizeMB int // RotateSize 用
	MaxBackups    int // 最多保留的历史文件数

	// 异步队列大小（<=0 使用默认 10000）
	QueueSize int

	// Writer 非空时不落文件，同步写到 Writer（测试、容器 stdout）
	Writer io.Writer
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = "app"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
	if c.LogDir == "" {
		c.LogDir = "."
	}
	return c
}

// ParseLevel debug/info/warn/error，无法识别时回退到 info
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
