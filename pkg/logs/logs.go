package logs

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// logs 是对hlog的简单包装, 业务代码统一使用这里的方法打日志

// SetLevel 根据配置设置日志级别, 未知级别时使用info
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		hlog.SetLevel(hlog.LevelDebug)
	case "warn":
		hlog.SetLevel(hlog.LevelWarn)
	case "error", "severe":
		hlog.SetLevel(hlog.LevelError)
	default:
		hlog.SetLevel(hlog.LevelInfo)
	}
}

func Debugf(format string, v ...any) { hlog.Debugf(format, v...) }
func Infof(format string, v ...any)  { hlog.Infof(format, v...) }
func Warnf(format string, v ...any)  { hlog.Warnf(format, v...) }
func Errorf(format string, v ...any) { hlog.Errorf(format, v...) }

func CtxDebugf(ctx context.Context, format string, v ...any) { hlog.CtxDebugf(ctx, format, v...) }
func CtxInfof(ctx context.Context, format string, v ...any)  { hlog.CtxInfof(ctx, format, v...) }
func CtxWarnf(ctx context.Context, format string, v ...any)  { hlog.CtxWarnf(ctx, format, v...) }
func CtxErrorf(ctx context.Context, format string, v ...any) { hlog.CtxErrorf(ctx, format, v...) }
