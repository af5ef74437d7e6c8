package errno

import (
	"github.com/xh-polaris/mindy-core-api/pkg/errorx/code"
)

const (
	ConversationCreateErrCode    = 30001
	ConversationChatErrCode      = 30002
	ConversationListErrCode      = 30003
	ConversationGetErrCode       = 30004
	ConversationArchiveErrCode   = 30005
	ConversationResumeErrCode    = 30006
	ConversationStatusErrCode    = 30007
	ConversationSweepErrCode     = 30008
	ConversationSummarizeErrCode = 30009
)

func init() {
	code.Register(
		ConversationCreateErrCode,
		"could not start a new conversation",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationChatErrCode,
		"could not process the message",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationListErrCode,
		"failed to list conversations",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationGetErrCode,
		"failed to get conversation",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationArchiveErrCode,
		"failed to archive conversation",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationResumeErrCode,
		"failed to resume conversation",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationStatusErrCode,
		"failed to get inactivity status",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationSweepErrCode,
		"failed to process pending conversations",
		code.WithAffectStability(true),
	)
	code.Register(
		ConversationSummarizeErrCode,
		"failed to summarize inactive conversations",
		code.WithAffectStability(true),
	)
}
