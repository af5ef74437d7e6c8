package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/xh-polaris/mindy-core-api/biz/domain/agent"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/biz/infra/metrics"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

// 不摘要的原因
const (
	ReasonTooShort   = "too-short"
	ReasonNotNeeded  = "not-needed"
	ReasonClaimed    = "claimed"
	ReasonConflicted = "conflicted"
)

// TurnReader 读取对话消息
type TurnReader interface {
	List(ctx context.Context, c *conversation.Conversation, opt *turn.ListOption) ([]*turn.Turn, error)
}

// Result 一次摘要的结果, Updated为false时表示本次没有修改
type Result struct {
	Updated bool
	Reason  string
	From    int64 // 本次摘要覆盖的消息范围 [From, Through)
	Through int64
}

// Summarizer 将对话中较早的消息压缩进累计摘要, 原始消息不会被修改
type Summarizer struct {
	conversations conversation.Mapper
	turns         TurnReader
	generator     agent.Generator
	lifecycle     config.Lifecycle
	now           func() time.Time
}

func New(conversations conversation.Mapper, turns TurnReader, generator agent.Generator, lifecycle config.Lifecycle, now func() time.Time) *Summarizer {
	if now == nil {
		now = time.Now
	}
	return &Summarizer{conversations: conversations, turns: turns, generator: generator, lifecycle: lifecycle, now: now}
}

// MaybeSummarize 在需要时摘要对话
// 同一对话同时只有一个摘要在进行, 其余调用直接返回未修改
func (s *Summarizer) MaybeSummarize(ctx context.Context, id string) (*Result, error) {
	return s.SummarizeThrough(ctx, id, 0)
}

// SummarizeThrough 同MaybeSummarize, 并保证摘要覆盖index小于through的消息
// 用于上下文因token预算省略了部分未摘要消息的情况
func (s *Summarizer) SummarizeThrough(ctx context.Context, id string, through int64) (*Result, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r := s.plan(c, through); r.Reason != "" {
		return s.noop(r), nil
	}

	now := s.Now()
	claimed, err := s.conversations.ClaimSummary(ctx, id, now, now.Add(s.lifecycle.SummaryLease))
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}
	if !claimed {
		return s.noop(&Result{Reason: ReasonClaimed}), nil
	}
	defer func() {
		if err := s.conversations.ReleaseSummary(context.WithoutCancel(ctx), id); err != nil {
			logs.CtxErrorf(ctx, "[summarizer] release claim of %s err: %s", id, errorx.ErrorWithoutStack(err))
		}
	}()

	// 获取租约后重新读取, 避免使用租约前的旧状态
	if c, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	r := s.plan(c, through)
	if r.Reason != "" {
		return s.noop(r), nil
	}

	batch, err := s.turns.List(ctx, c, &turn.ListOption{From: r.From, To: r.Through})
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}
	if int64(len(batch)) != r.Through-r.From {
		return nil, s.fail(ctx, id, errors.New("turn ledger is incomplete"))
	}

	reply, err := s.generator.Generate(ctx, &agent.Prompt{
		Kind:     agent.KindSummarizer,
		UserId:   c.UserId,
		Messages: []*schema.Message{schema.UserMessage(Compose(c.Summary, batch))},
	})
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}

	ok, err := s.conversations.UpdateSummary(ctx, id, c.SummarizedThrough, &conversation.SummaryUpdate{
		Summary: reply.Text,
		Through: r.Through,
		Usage:   reply.Usage.Map(),
		Now:     s.Now(),
	})
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}
	if !ok {
		return s.noop(&Result{Reason: ReasonConflicted}), nil
	}
	metrics.Summarizations.WithLabelValues(metrics.ResultUpdated).Inc()
	logs.CtxInfof(ctx, "[summarizer] conversation %s summarized through %d", id, r.Through)
	r.Updated = true
	return r, nil
}

func (s *Summarizer) Now() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// plan 计算需要摘要的范围, Reason不为空时表示不需要摘要, floor为摘要至少需要覆盖到的位置
func (s *Summarizer) plan(c *conversation.Conversation, floor int64) *Result {
	if c.TurnCount < cst.MinSummaryTurns {
		return &Result{Reason: ReasonTooShort}
	}
	live := c.LiveTurns()
	var through int64
	switch {
	case c.IsArchived() && live > 0:
		through = c.TurnCount
	case live > int64(s.lifecycle.WindowTurns):
		through = c.TurnCount - int64(s.lifecycle.RetainTurns)
	}
	if floor > through {
		through = min(floor, c.TurnCount)
	}
	if through <= c.SummarizedThrough {
		return &Result{Reason: ReasonNotNeeded}
	}
	return &Result{From: c.SummarizedThrough, Through: through}
}

func (s *Summarizer) load(ctx context.Context, id string) (*conversation.Conversation, error) {
	c, err := s.conversations.FindOne(ctx, id)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, errorx.New(errno.NotFoundErrCode, errorx.KV("kind", "conversation"))
	} else if err != nil {
		return nil, s.fail(ctx, id, err)
	}
	return c, nil
}

func (s *Summarizer) noop(r *Result) *Result {
	metrics.Summarizations.WithLabelValues(metrics.ResultNoop).Inc()
	return r
}

func (s *Summarizer) fail(ctx context.Context, id string, err error) error {
	metrics.Summarizations.WithLabelValues(metrics.ResultFailed).Inc()
	logs.CtxErrorf(ctx, "[summarizer] conversation %s err: %s", id, errorx.ErrorWithoutStack(err))
	return errorx.WrapByCode(err, errno.SummarizationErrCode, errorx.KV("conversation", id))
}

// Compose 将已有摘要与新消息组合为摘要智能体的输入
func Compose(previous string, batch []*turn.Turn) string {
	var sb strings.Builder
	sb.WriteString("Previous notes:\n")
	if previous == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(previous)
		sb.WriteString("\n")
	}
	sb.WriteString("\nNew messages:\n")
	for _, t := range batch {
		if t.Role == cst.Assistant {
			sb.WriteString("Assistant: ")
		} else {
			sb.WriteString("User: ")
		}
		sb.WriteString(t.Text())
		sb.WriteString("\n")
	}
	return sb.String()
}
