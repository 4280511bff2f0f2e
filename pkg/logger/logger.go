// Package logger 提供基于 zap 的分组件日志记录器
//
// 每个组件通过 Logging(name) 获取带名称的 SugaredLogger，
// 输出到 stderr，可选地同时写入由 lumberjack 轮转的日志文件。
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu   sync.RWMutex
	base *zap.Logger
)

// Options 日志初始化参数
type Options struct {
	Level       string
	FileEnabled bool
	FilePath    string
	FileSize    int // MB
	MaxAge      int // 天
	MaxBackups  int
	Compress    bool
}

// Init 根据 Options 重建全局日志记录器
//
// 参数：
//
//	opts: 日志参数，Level 无法解析时返回错误
//
// 注意事项：
//  1. 控制台输出固定写到 stderr，stdout 留给命令的正常输出
//  2. FileEnabled 为 true 时追加一个 lumberjack 文件输出
//  3. 重复调用会替换之前的记录器，已经获取的 SugaredLogger 不受影响
func Init(opts Options) error {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.FileEnabled && opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.FileSize,
			MaxAge:     opts.MaxAge,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	l = l.With(zap.Int("pid", os.Getpid()))

	mu.Lock()
	old := base
	base = l
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}

	return nil
}

// Logging 返回指定组件名的日志记录器，Init 之前调用时使用默认的 info 级别输出
func Logging(name string) *zap.SugaredLogger {
	mu.RLock()
	l := base
	mu.RUnlock()

	if l == nil {
		_ = Init(Options{Level: "info"})

		mu.RLock()
		l = base
		mu.RUnlock()
	}

	return l.Named(name).Sugar()
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()

	if base != nil {
		_ = base.Sync()
	}
}
