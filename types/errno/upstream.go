package errno

import (
	"github.com/xh-polaris/mindy-core-api/pkg/errorx/code"
)

const (
	UpstreamErrCode         = 70001
	UpstreamRejectedErrCode = 70002
	SummarizationErrCode    = 70003
)

func init() {
	code.Register(
		UpstreamErrCode,
		"the assistant is unavailable right now, please retry",
		code.WithAffectStability(false),
	)
	code.Register(
		UpstreamRejectedErrCode,
		"the assistant could not answer this message",
		code.WithAffectStability(false),
	)
	code.Register(
		SummarizationErrCode,
		"summarization of conversation {conversation} failed",
		code.WithAffectStability(false),
	)
}
