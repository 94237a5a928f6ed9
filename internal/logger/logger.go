// 包 logger：统一初始化与获取日志器；CDB 各模块通过 L() 取用，级别与格式由环境变量控制
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Setup：初始化默认日志器
// 约束：LOG_LEVEL 取 debug/info/warn/error；LOG_FORMAT=json 时输出 JSON，否则文本；输出到标准错误
func Setup() *slog.Logger {
	lvl := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	l := slog.New(h)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return l
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}

// Verbose：按瓦片粒度的详细日志
// verbose 为 true 时以 Info 级别输出，否则降为 Debug
func Verbose(verbose bool, msg string, args ...any) {
	if verbose {
		L().Info(msg, args...)
		return
	}
	L().Debug(msg, args...)
}
