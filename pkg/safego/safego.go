package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/xh-polaris/mindy-core-api/pkg/logs"
)

// Go 启动一个会捕获panic的协程
func Go(ctx context.Context, fn func()) {
	go func() {
		defer Recovery(ctx)

		fn()
	}()
}

func Recovery(ctx context.Context) {
	e := recover()
	if e == nil {
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	err := fmt.Errorf("%v", e)
	logs.CtxErrorf(ctx, "[catch panic] err = %v \n stacktrace:\n%s", err, debug.Stack())
}
