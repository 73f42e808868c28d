package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

type caller struct {
	file     string
	line     int
	funcName string
}

func getCaller(skip int) caller {
	pc, file, line, ok := runtime.Caller(skip + 1)
	c := caller{file: trimFilePath(file), line: line, funcName: "unknown"}
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			c.funcName = trimFuncName(fn.Name())
		}
	}
	return c
}

var (
	modRootOnce sync.Once
	modRoot     string
)

// /Users/xxx/ginspan/tracex/tracing.go -> tracex/tracing.go
func trimFilePath(fullPath string) string {
	if fullPath == "" {
		return ""
	}
	modRootOnce.Do(func() {
		if m, err := findGoModRoot(fullPath); err == nil {
			modRoot = m
		}
	})
	if modRoot != "" {
		if rel, err := filepath.Rel(modRoot, fullPath); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(fullPath)
}

func findGoModRoot(start string) (string, error) {
	dir := filepath.Dir(start)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", start)
		}
		dir = parent
	}
}

// github.com/imattdu/ginspan/tracex.(*Tracing).OnRequestEnd -> (*Tracing).OnRequestEnd
func trimFuncName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, "."); idx >= 0 && idx+1 < len(name) {
		name = name[idx+1:]
	}
	return name
}
