package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/metrics"
	"github.com/xh-polaris/mindy-core-api/pkg/ac"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

var _ Generator = (*Factory)(nil)

// finishContentFilter 模型因内容策略拒绝回答时的结束原因
const finishContentFilter = "content_filter"

// Agent 一个智能体, 由模型与系统提示词组成
type Agent struct {
	Kind         Kind
	Name         string // 模型名
	SystemPrompt string
	Model        model.BaseChatModel
}

// Factory 按类型路由到对应智能体的Generator
type Factory struct {
	agents  map[Kind]*Agent
	guard   *ac.Matcher
	timeout time.Duration
}

// New 使用已创建的智能体构建Factory, guard为nil时不做内容检查
func New(agents []*Agent, guard *ac.Matcher, timeout time.Duration) *Factory {
	f := &Factory{agents: make(map[Kind]*Agent, len(agents)), guard: guard, timeout: timeout}
	for _, a := range agents {
		if a.SystemPrompt == "" {
			a.SystemPrompt = DefaultPrompt(a.Kind)
		}
		f.agents[a.Kind] = a
	}
	return f
}

// NewFactory 根据配置创建全部智能体, 未单独配置的类型使用support的配置
func NewFactory(c *config.Config) (*Factory, error) {
	ctx := context.Background()
	fallback, ok := c.Agents[string(KindSupport)]
	if !ok {
		return nil, fmt.Errorf("agent %q is not configured", KindSupport)
	}
	guard, err := ac.New(c.Sensitive.Words)
	if err != nil {
		return nil, err
	}
	client := NewHTTPClient(c.Lifecycle.GenerateTimeout)
	agents := make([]*Agent, 0, len(Kinds))
	for _, kind := range Kinds {
		cfg, ok := c.Agents[string(kind)]
		if !ok {
			cfg = fallback
			cfg.SystemPrompt = ""
		}
		b, err := getBuilder(cfg.Provider)
		if err != nil {
			return nil, err
		}
		m, err := b(ctx, &cfg, client)
		if err != nil {
			return nil, fmt.Errorf("build %s agent: %w", kind, err)
		}
		agents = append(agents, &Agent{Kind: kind, Name: cfg.Model, SystemPrompt: cfg.SystemPrompt, Model: m})
	}
	return New(agents, guard, c.Lifecycle.GenerateTimeout), nil
}

// Generate 调用对应类型的智能体
func (f *Factory) Generate(ctx context.Context, p *Prompt) (reply *Reply, err error) {
	a, ok := f.agents[p.Kind]
	if !ok {
		return nil, errorx.New(errno.UpstreamErrCode, errorx.Extra("reason", "unknown agent "+string(p.Kind)))
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	in := make([]*schema.Message, 0, len(p.Messages)+1)
	in = append(in, schema.SystemMessage(a.SystemPrompt))
	for _, m := range p.Messages {
		if m != nil && m.Content != "" {
			in = append(in, m)
		}
	}

	start, result := time.Now(), metrics.ResultOK
	defer func() {
		metrics.Generations.WithLabelValues(string(p.Kind), result).Observe(time.Since(start).Seconds())
	}()

	out, err := a.Model.Generate(ctx, in)
	if err != nil {
		result = metrics.ResultError
		logs.CtxErrorf(ctx, "[agent] %s generate err: %s", p.Kind, errorx.ErrorWithoutStack(err))
		return nil, errorx.WrapByCode(err, errno.UpstreamErrCode)
	}
	reply = &Reply{Model: a.Name}
	if out != nil {
		reply.Text = strings.TrimSpace(out.Content)
		if meta := out.ResponseMeta; meta != nil {
			reply.FinishReason = meta.FinishReason
			if meta.Usage != nil {
				reply.Usage = Usage{
					PromptTokens:     int64(meta.Usage.PromptTokens),
					CompletionTokens: int64(meta.Usage.CompletionTokens),
					TotalTokens:      int64(meta.Usage.TotalTokens),
				}
			}
		}
	}

	if reply.FinishReason == finishContentFilter {
		result = metrics.ResultRejected
		return nil, errorx.New(errno.UpstreamRejectedErrCode, errorx.Extra("reason", finishContentFilter))
	}
	if hit, words := f.guard.Search(reply.Text, true); hit {
		result = metrics.ResultRejected
		logs.CtxWarnf(ctx, "[agent] %s reply rejected by guard, hits: %v", p.Kind, words)
		return nil, errorx.New(errno.UpstreamRejectedErrCode, errorx.Extra("reason", "policy"))
	}
	if reply.Text == "" {
		result = metrics.ResultError
		return nil, errorx.New(errno.UpstreamErrCode, errorx.Extra("reason", "empty reply"))
	}
	return reply, nil
}
