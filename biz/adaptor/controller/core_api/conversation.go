package core_api

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/xh-polaris/mindy-core-api/biz/adaptor"
	"github.com/xh-polaris/mindy-core-api/biz/application/dto/core_api"
	"github.com/xh-polaris/mindy-core-api/provider"
)

// StartConversation 创建对话并返回开场白
// @router /conversation/start [POST]
func StartConversation(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.StartConversationReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.StartConversation(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// Chat 发送一条消息并获取回复
// @router /conversation/chat [POST]
func Chat(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.ChatReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.Chat(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// GetConversation .
// @router /conversation/:id [GET]
func GetConversation(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.GetConversationReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.GetConversation(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// ListConversation .
// @router /conversation/list [GET]
func ListConversation(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.ListConversationReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.ListConversation(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// ResumeConversation .
// @router /conversation/:id/resume [POST]
func ResumeConversation(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.ResumeConversationReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.ResumeConversation(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// ArchiveConversation .
// @router /conversation/:id/archive [POST]
func ArchiveConversation(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.ArchiveConversationReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.ArchiveConversation(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// InactivityStatus 用户是否处于不活跃状态
// @router /user/inactivity [GET]
func InactivityStatus(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.InactivityStatusReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.InactivityStatus(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// SummarizeInactive 归档当前用户不活跃的对话并补齐摘要
// @router /user/summarize-inactive [POST]
func SummarizeInactive(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.SummarizeInactiveReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.SummarizeInactive(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}

// Sweep 手动触发一轮归档与摘要
// @router /admin/sweep [POST]
func Sweep(ctx context.Context, c *app.RequestContext) {
	var err error
	var req core_api.SweepReq
	err = c.BindAndValidate(&req)
	if err != nil {
		adaptor.PostProcess(ctx, c, &req, nil, err)
		return
	}

	ctx = adaptor.InjectContext(ctx, c)
	p := provider.Get()
	resp, err := p.ConversationService.Sweep(ctx, &req)
	adaptor.PostProcess(ctx, c, &req, resp, err)
}
