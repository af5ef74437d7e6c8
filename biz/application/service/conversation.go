package service

import (
	"context"

	"github.com/google/wire"
	"github.com/xh-polaris/mindy-core-api/biz/adaptor"
	"github.com/xh-polaris/mindy-core-api/biz/application/dto/core_api"
	"github.com/xh-polaris/mindy-core-api/biz/domain/engine"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/biz/infra/util"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

type IConversationService interface {
	StartConversation(ctx context.Context, req *core_api.StartConversationReq) (*core_api.StartConversationResp, error)
	Chat(ctx context.Context, req *core_api.ChatReq) (*core_api.ChatResp, error)
	GetConversation(ctx context.Context, req *core_api.GetConversationReq) (*core_api.GetConversationResp, error)
	ListConversation(ctx context.Context, req *core_api.ListConversationReq) (*core_api.ListConversationResp, error)
	ResumeConversation(ctx context.Context, req *core_api.ResumeConversationReq) (*core_api.ResumeConversationResp, error)
	ArchiveConversation(ctx context.Context, req *core_api.ArchiveConversationReq) (*core_api.ArchiveConversationResp, error)
	InactivityStatus(ctx context.Context, req *core_api.InactivityStatusReq) (*core_api.InactivityStatusResp, error)
	SummarizeInactive(ctx context.Context, req *core_api.SummarizeInactiveReq) (*core_api.SummarizeInactiveResp, error)
	Sweep(ctx context.Context, req *core_api.SweepReq) (*core_api.SweepResp, error)
}

type ConversationService struct {
	Engine *engine.Engine
}

var ConversationServiceSet = wire.NewSet(
	wire.Struct(new(ConversationService), "*"),
	wire.Bind(new(IConversationService), new(*ConversationService)),
)

func (s *ConversationService) StartConversation(ctx context.Context, _ *core_api.StartConversationReq) (*core_api.StartConversationResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	// 创建对话并生成开场白
	started, err := s.Engine.StartConversation(ctx, uid)
	if err != nil {
		logs.CtxErrorf(ctx, "start conversation error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationCreateErrCode)
	}
	return &core_api.StartConversationResp{
		Resp:         util.Success(),
		Conversation: toConversation(started.Conversation),
		Greeting:     toTurn(started.Greeting),
	}, nil
}

func (s *ConversationService) Chat(ctx context.Context, req *core_api.ChatReq) (*core_api.ChatResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := s.Engine.Chat(ctx, uid, req.GetConversationId(), req.GetMessage())
	if err != nil {
		logs.CtxErrorf(ctx, "chat error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationChatErrCode)
	}
	return &core_api.ChatResp{
		Resp:         util.Success(),
		Conversation: toConversation(reply.Conversation),
		Reply:        toTurn(reply.Assistant),
		Resumed:      reply.Resumed,
		Created:      reply.Created,
	}, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, req *core_api.GetConversationReq) (*core_api.GetConversationResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.Engine.GetConversation(ctx, uid, req.ConversationId)
	if err != nil {
		logs.CtxErrorf(ctx, "get conversation error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationGetErrCode)
	}
	turns := make([]*core_api.Turn, 0, len(view.Turns))
	for _, t := range view.Turns {
		turns = append(turns, toTurn(t))
	}
	return &core_api.GetConversationResp{Resp: util.Success(), Conversation: toConversation(view.Conversation), Turns: turns}, nil
}

func (s *ConversationService) ListConversation(ctx context.Context, req *core_api.ListConversationReq) (*core_api.ListConversationResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := s.Engine.ListByStatus(ctx, uid, req.Status)
	if err != nil {
		logs.CtxErrorf(ctx, "list conversation error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationListErrCode)
	}
	out := make([]*core_api.Conversation, 0, len(cs))
	for _, c := range cs {
		out = append(out, toConversation(c))
	}
	return &core_api.ListConversationResp{Resp: util.Success(), Conversations: out}, nil
}

func (s *ConversationService) ResumeConversation(ctx context.Context, req *core_api.ResumeConversationReq) (*core_api.ResumeConversationResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	c, resumed, err := s.Engine.Resume(ctx, uid, req.ConversationId)
	if err != nil {
		logs.CtxErrorf(ctx, "resume conversation error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationResumeErrCode)
	}
	return &core_api.ResumeConversationResp{Resp: util.Success(), Conversation: toConversation(c), Resumed: resumed}, nil
}

func (s *ConversationService) ArchiveConversation(ctx context.Context, req *core_api.ArchiveConversationReq) (*core_api.ArchiveConversationResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.Engine.Archive(ctx, uid, req.ConversationId)
	if err != nil {
		logs.CtxErrorf(ctx, "archive conversation error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationArchiveErrCode)
	}
	return &core_api.ArchiveConversationResp{Resp: util.Success(), Conversation: toConversation(c)}, nil
}

func (s *ConversationService) InactivityStatus(ctx context.Context, _ *core_api.InactivityStatusReq) (*core_api.InactivityStatusResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.Engine.InactivityStatus(ctx, uid)
	if err != nil {
		logs.CtxErrorf(ctx, "inactivity status error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationStatusErrCode)
	}
	return &core_api.InactivityStatusResp{
		Resp:           util.Success(),
		LastActivityAt: util.Millis(st.LastActivityAt),
		Inactive:       st.Inactive,
		Open:           st.Open,
		PendingSummary: st.PendingSummary,
	}, nil
}

func (s *ConversationService) SummarizeInactive(ctx context.Context, _ *core_api.SummarizeInactiveReq) (*core_api.SummarizeInactiveResp, error) {
	// 鉴权
	uid, err := extractUserId(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.Engine.SummarizeInactive(ctx, uid)
	if err != nil {
		logs.CtxErrorf(ctx, "summarize inactive error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationSummarizeErrCode)
	}
	return &core_api.SummarizeInactiveResp{
		Resp:       util.Success(),
		Archived:   report.Archived,
		Summarized: report.Summarized,
		Failed:     report.Failed,
	}, nil
}

func (s *ConversationService) Sweep(ctx context.Context, _ *core_api.SweepReq) (*core_api.SweepResp, error) {
	if err := adaptor.CheckAdmin(ctx); err != nil {
		logs.CtxWarnf(ctx, "check admin error: %s", errorx.ErrorWithoutStack(err))
		return nil, errorx.WrapByCode(err, errno.UnAuthErrCode)
	}
	report, err := s.Engine.Sweep(ctx)
	if err != nil {
		logs.CtxErrorf(ctx, "sweep error: %s", errorx.ErrorWithoutStack(err))
		return nil, wrap(err, errno.ConversationSweepErrCode)
	}
	return &core_api.SweepResp{
		Resp:       util.Success(),
		Archived:   report.Archived,
		Summarized: report.Summarized,
		Failed:     report.Failed,
	}, nil
}

func extractUserId(ctx context.Context) (string, error) {
	uid, err := adaptor.ExtractUserId(ctx)
	if err != nil {
		logs.CtxErrorf(ctx, "extract user id error: %s", errorx.ErrorWithoutStack(err))
		return "", errorx.WrapByCode(err, errno.UnAuthErrCode)
	}
	return uid, nil
}

// wrap 保留领域层给出的错误码, 其余错误使用接口对应的错误码
func wrap(err error, code int32) error {
	if errorx.CodeOf(err) != 0 {
		return err
	}
	return errorx.WrapByCode(err, code)
}

func toConversation(c *conversation.Conversation) *core_api.Conversation {
	if c == nil {
		return nil
	}
	return &core_api.Conversation{
		ConversationId: c.ConversationId,
		Title:          c.Title,
		Status:         c.Status,
		Archived:       c.Archived,
		HasSummary:     c.Summary != "",
		TurnCount:      c.TurnCount,
		Model:          c.Model,
		TokenUsage:     c.TokenUsage,
		LastActivityAt: util.Millis(c.LastActivityAt),
		CreateTime:     util.Millis(c.CreateTime),
	}
}

func toTurn(t *turn.Turn) *core_api.Turn {
	if t == nil {
		return nil
	}
	return &core_api.Turn{
		TurnId:     t.TurnId,
		Index:      t.Index,
		Role:       t.Role,
		Content:    t.Text(),
		CreateTime: util.Millis(t.CreateTime),
	}
}
