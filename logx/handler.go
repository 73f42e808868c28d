package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// sink 负责把编码好的一行落地
type sink interface {
	write(line []byte, now time.Time) error
}

type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *writerSink) write(line []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(line)
	return err
}

type handler struct {
	level   slog.Level
	sinks   []sink
	colored bool

	// nil 表示同步写
	entries chan slog.Record
}

func newHandler(cfg Config) (slog.Handler, error) {
	cfg = cfg.withDefaults()
	h := &handler{level: cfg.Level, colored: cfg.ConsoleColored}

	if cfg.Writer != nil {
		h.sinks = append(h.sinks, &writerSink{w: cfg.Writer})
		return h, nil
	}

	fs, err := newFileSink(cfg)
	if err != nil {
		return nil, err
	}
	h.sinks = append(h.sinks, fs)
	if cfg.ConsoleEnabled {
		h.sinks = append(h.sinks, &writerSink{w: os.Stdout})
	}

	h.entries = make(chan slog.Record, cfg.QueueSize)
	go h.writeLoop()
	return h, nil
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle 异步模式下只入队，队列满直接丢，不阻塞请求
func (h *handler) Handle(_ context.Context, r slog.Record) error {
	if h.entries == nil {
		return h.writeRecord(r)
	}
	select {
	case h.entries <- r.Clone():
	default:
		log.Println("logx: queue full, drop log")
	}
	return nil
}

// 属性统一由 encodeLog 给出，这里不做分组
func (h *handler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *handler) WithGroup(string) slog.Handler      { return h }

func (h *handler) writeLoop() {
	for rec := range h.entries {
		if err := h.writeRecord(rec); err != nil {
			log.Println("logx: write failed:", err)
		}
	}
}

func (h *handler) writeRecord(r slog.Record) error {
	data := make(map[string]any, r.NumAttrs()+2)
	data["ts"] = r.Time.Format(time.RFC3339Nano)
	data["level"] = r.Level.String()
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	line, err := json.Marshal(data)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	now := time.Now()
	for i, s := range h.sinks {
		out := line
		if i > 0 && h.colored {
			out = append([]byte(colorPrefix(r.Level)), line...)
		}
		if err := s.write(out, now); err != nil {
			return err
		}
	}
	return nil
}

func colorPrefix(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m[ERROR]\033[0m "
	case level >= slog.LevelWarn:
		return "\033[33m[WARN ]\033[0m "
	case level >= slog.LevelInfo:
		return "\033[32m[INFO ]\033[0m "
	default:
		return "\033[36m[DEBUG]\033[0m "
	}
}

// -------------------- 文件切分 --------------------

type fileSink struct {
	cfg Config

	mu    sync.Mutex
	file  *os.File
	size  int64
	curHr time.Time
}

func newFileSink(cfg Config) (*fileSink, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, err
	}
	fs := &fileSink{cfg: cfg}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.rotateLocked(time.Now()); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *fileSink) write(line []byte, now time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.needRotate(now) {
		if err := fs.rotateLocked(now); err != nil {
			return err
		}
	}
	n, err := fs.file.Write(line)
	fs.size += int64(n)
	return err
}

func (fs *fileSink) needRotate(now time.Time) bool {
	if fs.file == nil {
		return true
	}
	if fs.cfg.Rotate == RotateSize {
		return fs.cfg.MaxFileSizeMB > 0 && fs.size >= int64(fs.cfg.MaxFileSizeMB)<<20
	}
	return !now.Truncate(time.Hour).Equal(fs.curHr)
}

func (fs *fileSink) rotateLocked(now time.Time) error {
	if fs.file != nil {
		_ = fs.file.Close()
	}

	layout := "2006010215"
	if fs.cfg.Rotate == RotateSize {
		layout = "20060102150405"
	}
	name := filepath.Join(fs.cfg.LogDir, fmt.Sprintf("%s-%s.log", fs.cfg.AppName, now.Format(layout)))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fs.file = f
	fs.size = 0
	fs.curHr = now.Truncate(time.Hour)

	// {AppName}.log 软链到当前文件
	link := filepath.Join(fs.cfg.LogDir, fs.cfg.AppName+".log")
	_ = os.Remove(link)
	_ = os.Symlink(filepath.Base(name), link)

	if fs.cfg.MaxBackups > 0 {
		fs.cleanup()
	}
	return nil
}

// cleanup 按修改时间只保留最新 MaxBackups 个
func (fs *fileSink) cleanup() {
	entries, err := os.ReadDir(fs.cfg.LogDir)
	if err != nil {
		log.Println("logx: cleanup:", err)
		return
	}

	type old struct {
		path string
		mod  time.Time
	}
	prefix := fs.cfg.AppName + "-"
	var files []old
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, old{path: filepath.Join(fs.cfg.LogDir, e.Name()), mod: info.ModTime()})
	}
	if len(files) <= fs.cfg.MaxBackups {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	for _, f := range files[fs.cfg.MaxBackups:] {
		_ = os.Remove(f.path)
	}
}
