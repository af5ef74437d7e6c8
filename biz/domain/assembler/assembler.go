package assembler

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

const (
	summaryHeader  = "Summary of the earlier part of this conversation:\n"
	resumeHint     = "The user is returning to this conversation after a break. Welcome them back and pick up where you left off."
	previousHeader = "Notes from the user's earlier conversations, most recent first. Use them for continuity only:\n"
	greetingCue    = "(The user has just opened a new conversation.)"
)

// TurnReader 读取对话消息
type TurnReader interface {
	List(ctx context.Context, c *conversation.Conversation, opt *turn.ListOption) ([]*turn.Turn, error)
}

// Assembler 构建发送给模型的有界上下文
// 顺序始终为 [摘要] + [未被摘要的最近消息] + [新的用户消息], 其它对话只会以摘要形式出现
type Assembler struct {
	turns         TurnReader
	conversations conversation.Mapper
	lifecycle     config.Lifecycle
}

func New(turns TurnReader, conversations conversation.Mapper, lifecycle config.Lifecycle) *Assembler {
	return &Assembler{turns: turns, conversations: conversations, lifecycle: lifecycle}
}

// Context 组装好的上下文
type Context struct {
	Messages  []*schema.Message
	Summaries int // 使用的摘要数
	Turns     int // 使用的历史消息数
	Tokens    int // 估算的token数
	// OmittedBefore 超出窗口或token预算而没有放入上下文的未摘要消息的位置上界, 为0时没有省略
	OmittedBefore int64
}

// BuildGreeting 为新对话构建开场上下文, 只使用用户其它对话的摘要
func (a *Assembler) BuildGreeting(ctx context.Context, uid, excludeId string) (*Context, error) {
	out := &Context{}
	notes, err := a.previousNotes(ctx, uid, excludeId)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		out.Messages, out.Summaries = append(out.Messages, notes.msg), notes.count
	}
	out.Messages = append(out.Messages, schema.UserMessage(greetingCue))
	out.Tokens = EstimateMessages(out.Messages)
	return out, nil
}

// Build 为对话中的新消息构建上下文, resumed表示对话刚从归档中恢复
func (a *Assembler) Build(ctx context.Context, c *conversation.Conversation, message string, resumed bool) (*Context, error) {
	out := &Context{}
	var head []string
	if c.Summary != "" {
		head = append(head, summaryHeader+c.Summary)
		out.Summaries++
	}
	if resumed {
		head = append(head, resumeHint)
	}
	if len(head) > 0 {
		out.Messages = append(out.Messages, schema.SystemMessage(strings.Join(head, "\n\n")))
	}
	// 全新对话在一开始带上用户其它对话的摘要
	if c.TurnCount == 0 && c.Summary == "" {
		notes, err := a.previousNotes(ctx, c.UserId, c.ConversationId)
		if err != nil {
			return nil, err
		}
		if notes != nil {
			out.Messages, out.Summaries = append(out.Messages, notes.msg), out.Summaries+notes.count
		}
	}
	user := schema.UserMessage(message)

	live, err := a.window(ctx, c)
	if err != nil {
		return nil, err
	}
	budget := a.lifecycle.TokenBudget - EstimateMessages(out.Messages) - EstimateMessages([]*schema.Message{user})
	live = trim(live, budget)

	out.Messages = append(out.Messages, live...)
	out.Messages = append(out.Messages, user)
	out.Turns, out.Tokens = len(live), EstimateMessages(out.Messages)
	if int64(len(live)) < c.LiveTurns() {
		out.OmittedBefore = c.TurnCount - int64(len(live))
	}
	return out, nil
}

// window 取出未被摘要覆盖的最近WindowTurns条消息, 按时间正序
func (a *Assembler) window(ctx context.Context, c *conversation.Conversation) ([]*schema.Message, error) {
	if c.LiveTurns() == 0 {
		return nil, nil
	}
	turns, err := a.turns.List(ctx, c, &turn.ListOption{
		From:   c.SummarizedThrough,
		Newest: true,
		Limit:  int64(a.lifecycle.WindowTurns),
	})
	if err != nil {
		logs.CtxErrorf(ctx, "[assembler] load window of %s err: %s", c.ConversationId, errorx.ErrorWithoutStack(err))
		return nil, errorx.WrapByCode(err, errno.ContextUnavailableErrCode)
	}
	msgs := make([]*schema.Message, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		msgs = append(msgs, toMessage(turns[i]))
	}
	return msgs, nil
}

type notes struct {
	msg   *schema.Message
	count int
}

// previousNotes 用户最近的已归档或进行中对话的摘要, 不读取任何原始消息
func (a *Assembler) previousNotes(ctx context.Context, uid, excludeId string) (*notes, error) {
	limit := a.lifecycle.CrossConversationSummaries
	if limit <= 0 {
		return nil, nil
	}
	cs, err := a.conversations.ListWithSummary(ctx, uid,
		[]string{cst.StatusArchived, cst.StatusInProgress}, excludeId, int64(limit))
	if err != nil {
		logs.CtxErrorf(ctx, "[assembler] list summaries of %s err: %s", uid, errorx.ErrorWithoutStack(err))
		return nil, errorx.WrapByCode(err, errno.ContextUnavailableErrCode)
	}
	var sb strings.Builder
	n := 0
	for _, c := range cs {
		if c.Summary == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(c.Summary)
		sb.WriteString("\n")
		n++
	}
	if n == 0 {
		return nil, nil
	}
	return &notes{msg: schema.SystemMessage(previousHeader + strings.TrimSuffix(sb.String(), "\n")), count: n}, nil
}

// trim 从最旧的消息开始丢弃, 直到总token数不超过budget
func trim(msgs []*schema.Message, budget int) []*schema.Message {
	total := EstimateMessages(msgs)
	for len(msgs) > 0 && total > budget {
		total -= EstimateMessages(msgs[:1])
		msgs = msgs[1:]
	}
	return msgs
}

func toMessage(t *turn.Turn) *schema.Message {
	if t.Role == cst.Assistant {
		return schema.AssistantMessage(t.Text(), nil)
	}
	return schema.UserMessage(t.Text())
}
