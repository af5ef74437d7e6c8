package engine

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/xh-polaris/mindy-core-api/biz/domain/agent"
	"github.com/xh-polaris/mindy-core-api/biz/domain/assembler"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory"
	"github.com/xh-polaris/mindy-core-api/biz/domain/registry"
	"github.com/xh-polaris/mindy-core-api/biz/domain/sweeper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
	"github.com/zeromicro/go-zero/core/syncx"
)

// Scheduler 后台摘要任务的提交方式, through大于0时要求摘要覆盖index小于through的全部消息
type Scheduler interface {
	Enqueue(ctx context.Context, id string, through int64) bool
}

// Engine 对话生命周期的控制流程, 同一对话上的写操作串行执行
type Engine struct {
	registry  *registry.Registry
	memory    *memory.Store
	assembler *assembler.Assembler
	generator agent.Generator
	scheduler Scheduler
	sweeper   *sweeper.Sweeper
	tx        mapper.Transactor
	lifecycle config.Lifecycle
	locks     syncx.LockedCalls
}

type Options struct {
	Registry  *registry.Registry
	Memory    *memory.Store
	Assembler *assembler.Assembler
	Generator agent.Generator
	Scheduler Scheduler
	Sweeper   *sweeper.Sweeper
	Mappers   *mapper.Mappers
	Lifecycle config.Lifecycle
}

func New(o *Options) *Engine {
	return &Engine{
		registry:  o.Registry,
		memory:    o.Memory,
		assembler: o.Assembler,
		generator: o.Generator,
		scheduler: o.Scheduler,
		sweeper:   o.Sweeper,
		tx:        o.Mappers.Transactor,
		lifecycle: o.Lifecycle,
		locks:     syncx.NewLockedCalls(),
	}
}

// Started 新对话及其开场白
type Started struct {
	Conversation *conversation.Conversation
	Greeting     *turn.Turn
}

// StartConversation 创建对话并生成开场白, 开场白只参考用户其它对话的摘要
// 生成失败时不会创建对话
func (e *Engine) StartConversation(ctx context.Context, uid string) (*Started, error) {
	c, err := e.registry.Draft(uid)
	if err != nil {
		return nil, err
	}
	// 先归档不活跃的对话, 使其进入摘要流程
	if _, err = e.registry.AgeUser(ctx, uid); err != nil {
		return nil, err
	}
	prompt, err := e.assembler.BuildGreeting(ctx, uid, c.ConversationId)
	if err != nil {
		return nil, err
	}
	reply, err := e.generate(ctx, agent.KindIntake, uid, prompt)
	if err != nil {
		return nil, err
	}
	greeting := &turn.Turn{
		ConversationId: c.ConversationId,
		UserId:         uid,
		Role:           cst.Assistant,
		Content:        &turn.Content{Text: reply.Text},
	}
	if _, err = e.commit(ctx, c, true, reply, greeting); err != nil {
		return nil, err
	}
	return &Started{Conversation: c, Greeting: greeting}, nil
}

// Reply 一轮对话的结果
type Reply struct {
	Conversation *conversation.Conversation
	User         *turn.Turn
	Assistant    *turn.Turn
	Resumed      bool // 本条消息使已归档的对话重新激活
	Created      bool // 本条消息创建了新对话
}

// Chat 处理用户消息, conversationId为空时创建新对话
// 生成失败时不写入任何消息, 对话状态保持不变
func (e *Engine) Chat(ctx context.Context, uid, conversationId, message string) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errorx.New(errno.ValidationErrCode, errorx.KV("reason", "message is empty"))
	}
	if conversationId == "" {
		c, err := e.registry.Draft(uid)
		if err != nil {
			return nil, err
		}
		if _, err = e.registry.AgeUser(ctx, uid); err != nil {
			return nil, err
		}
		r, err := e.chat(ctx, c, true, message)
		if err != nil {
			return nil, err
		}
		r.Created = true
		return r, nil
	}
	v, err := e.locks.Do(conversationId, func() (any, error) {
		c, err := e.registry.Get(ctx, uid, conversationId)
		if err != nil {
			return nil, err
		}
		return e.chat(ctx, c, false, message)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Reply), nil
}

func (e *Engine) chat(ctx context.Context, c *conversation.Conversation, create bool, message string) (*Reply, error) {
	prompt, err := e.assembler.Build(ctx, c, message, c.IsArchived())
	if err != nil {
		return nil, err
	}
	reply, err := e.generate(ctx, agent.KindSupport, c.UserId, prompt)
	if err != nil {
		return nil, err
	}
	user := &turn.Turn{
		ConversationId: c.ConversationId,
		UserId:         c.UserId,
		Role:           cst.User,
		Content:        &turn.Content{Text: message},
	}
	assistant := &turn.Turn{
		ConversationId: c.ConversationId,
		UserId:         c.UserId,
		Role:           cst.Assistant,
		Content:        &turn.Content{Text: reply.Text},
	}
	resumed, err := e.commit(ctx, c, create, reply, user, assistant)
	if err != nil {
		return nil, err
	}
	// 超出窗口或token预算而没有放入上下文的消息需要尽快进入摘要
	if e.scheduler != nil && (c.LiveTurns() > int64(e.lifecycle.WindowTurns) || prompt.OmittedBefore > c.SummarizedThrough) {
		e.scheduler.Enqueue(ctx, c.ConversationId, prompt.OmittedBefore)
	}
	return &Reply{Conversation: c, User: user, Assistant: assistant, Resumed: resumed}, nil
}

// commit 在一个事务中写入消息并更新对话状态, 不受请求取消的影响, 返回对话是否被重新激活
func (e *Engine) commit(ctx context.Context, c *conversation.Conversation, create bool, reply *agent.Reply, turns ...*turn.Turn) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	var (
		next        conversation.Conversation
		reactivated bool
	)
	err := e.tx.WithTransaction(ctx, func(ctx context.Context) (err error) {
		// 事务可能被重试, 每次都从提交前的状态开始
		next = *c
		next.TokenUsage = maps.Clone(c.TokenUsage)
		if create {
			if err = e.registry.Insert(ctx, &next); err != nil {
				return err
			}
		}
		saved, err := e.memory.Append(ctx, turns...)
		if err != nil {
			return err
		}
		reactivated, err = e.registry.Record(ctx, &next, &registry.Exchange{Turns: saved, Model: reply.Model, Usage: reply.Usage.Map()})
		return err
	})
	if err != nil {
		logs.CtxErrorf(ctx, "[engine] commit exchange of %s err: %s", c.ConversationId, errorx.ErrorWithoutStack(err))
		return false, err
	}
	*c = next
	e.registry.Invalidate(ctx, c.ConversationId)
	e.memory.Remember(ctx, c.ConversationId, turns)
	return reactivated, nil
}

func (e *Engine) generate(ctx context.Context, kind agent.Kind, uid string, prompt *assembler.Context) (*agent.Reply, error) {
	if e.lifecycle.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lifecycle.GenerateTimeout)
		defer cancel()
	}
	reply, err := e.generator.Generate(ctx, &agent.Prompt{Kind: kind, UserId: uid, Messages: prompt.Messages})
	if err != nil {
		if errorx.CodeOf(err) == 0 {
			err = errorx.WrapByCode(err, errno.UpstreamErrCode)
		}
		return nil, err
	}
	if reply == nil || strings.TrimSpace(reply.Text) == "" {
		return nil, errorx.New(errno.UpstreamErrCode, errorx.Extra("reason", "empty reply"))
	}
	return reply, nil
}

// View 对话详情
type View struct {
	Conversation *conversation.Conversation
	Turns        []*turn.Turn
}

// GetConversation 获取对话及其全部消息
func (e *Engine) GetConversation(ctx context.Context, uid, id string) (*View, error) {
	c, err := e.registry.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	turns, err := e.memory.List(ctx, c, nil)
	if err != nil {
		return nil, err
	}
	return &View{Conversation: c, Turns: turns}, nil
}

// ListByStatus 列出用户指定状态的对话, status为空时列出全部
func (e *Engine) ListByStatus(ctx context.Context, uid, status string) ([]*conversation.Conversation, error) {
	return e.registry.ListByStatus(ctx, uid, status)
}

// Resume 显式恢复已归档的对话
func (e *Engine) Resume(ctx context.Context, uid, id string) (*conversation.Conversation, bool, error) {
	type result struct {
		c       *conversation.Conversation
		resumed bool
	}
	v, err := e.locks.Do(id, func() (any, error) {
		c, resumed, err := e.registry.Resume(ctx, uid, id)
		if err != nil {
			return nil, err
		}
		return &result{c: c, resumed: resumed}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(*result)
	return r.c, r.resumed, nil
}

// Archive 显式结束对话, 归档后在后台摘要剩余的消息
func (e *Engine) Archive(ctx context.Context, uid, id string) (*conversation.Conversation, error) {
	v, err := e.locks.Do(id, func() (any, error) {
		return e.registry.Archive(ctx, uid, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*conversation.Conversation), nil
}

// InactivityStatus 用户的不活跃状态
func (e *Engine) InactivityStatus(ctx context.Context, uid string) (*registry.Inactivity, error) {
	return e.registry.InactivityStatus(ctx, uid)
}

// Sweep 立即执行一轮清理
func (e *Engine) Sweep(ctx context.Context) (*sweeper.Report, error) {
	return e.sweeper.RunOnce(ctx)
}

// SummarizeInactive 归档用户不活跃的对话并补齐摘要
func (e *Engine) SummarizeInactive(ctx context.Context, uid string) (*sweeper.Report, error) {
	return e.sweeper.RunUser(ctx, uid)
}

// Now 引擎使用的当前时间
func (e *Engine) Now() time.Time {
	return e.registry.Now()
}
