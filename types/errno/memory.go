package errno

import (
	"github.com/xh-polaris/mindy-core-api/pkg/errorx/code"
)

const (
	ContextUnavailableErrCode = 40001
	TurnAppendErrCode         = 40002
	TurnListErrCode           = 40003
)

func init() {
	code.Register(
		ContextUnavailableErrCode,
		"conversation context is temporarily unavailable",
		code.WithAffectStability(true),
	)
	code.Register(
		TurnAppendErrCode,
		"failed to store message",
		code.WithAffectStability(true),
	)
	code.Register(
		TurnListErrCode,
		"failed to load messages",
		code.WithAffectStability(true),
	)
}
