package errno

import (
	"github.com/xh-polaris/mindy-core-api/pkg/errorx/code"
)

const (
	UnAuthErrCode        = 1000
	ValidationErrCode    = 1001
	AuthorizationErrCode = 1003
	NotFoundErrCode      = 1004
)

func init() {
	code.Register(
		UnAuthErrCode,
		"authentication failed",
		code.WithAffectStability(false),
	)
	code.Register(
		ValidationErrCode,
		"invalid request: {reason}",
		code.WithAffectStability(false),
	)
	code.Register(
		AuthorizationErrCode,
		"conversation does not belong to the current user",
		code.WithAffectStability(false),
	)
	code.Register(
		NotFoundErrCode,
		"{kind} not found",
		code.WithAffectStability(false),
	)
}
