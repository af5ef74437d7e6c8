package core_api

import (
	"github.com/xh-polaris/mindy-core-api/biz/application/dto/basic"
)

// Conversation 对话概要, 摘要只在服务端使用, 不返回给前端
type Conversation struct {
	ConversationId string           `json:"conversation_id"`
	Title          string           `json:"title"`
	Status         string           `json:"status"`
	Archived       bool             `json:"archived"`
	HasSummary     bool             `json:"has_summary"`
	TurnCount      int64            `json:"turn_count"`
	Model          string           `json:"model,omitempty"`
	TokenUsage     map[string]int64 `json:"token_usage,omitempty"`
	LastActivityAt int64            `json:"last_activity_at"` // 毫秒时间戳
	CreateTime     int64            `json:"create_time"`      // 毫秒时间戳
}

type Turn struct {
	TurnId     string `json:"turn_id"`
	Index      int64  `json:"index"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	CreateTime int64  `json:"create_time"` // 毫秒时间戳
}

type StartConversationReq struct{}

type StartConversationResp struct {
	Resp         *basic.Response `json:"resp"`
	Conversation *Conversation   `json:"conversation"`
	Greeting     *Turn           `json:"greeting"`
}

type ChatReq struct {
	ConversationId string `json:"conversation_id,omitempty"`
	Message        string `json:"message" vd:"len($)>0"`
}

func (x *ChatReq) GetConversationId() string {
	if x != nil {
		return x.ConversationId
	}
	return ""
}

func (x *ChatReq) GetMessage() string {
	if x != nil {
		return x.Message
	}
	return ""
}

type ChatResp struct {
	Resp         *basic.Response `json:"resp"`
	Conversation *Conversation   `json:"conversation"`
	Reply        *Turn           `json:"reply"`
	Resumed      bool            `json:"resumed"`
	Created      bool            `json:"created"`
}

type GetConversationReq struct {
	ConversationId string `path:"id" json:"conversation_id"`
}

type GetConversationResp struct {
	Resp         *basic.Response `json:"resp"`
	Conversation *Conversation   `json:"conversation"`
	Turns        []*Turn         `json:"turns"`
}

type ListConversationReq struct {
	Status string `query:"status" json:"status,omitempty"`
}

type ListConversationResp struct {
	Resp          *basic.Response `json:"resp"`
	Conversations []*Conversation `json:"conversations"`
}

type ResumeConversationReq struct {
	ConversationId string `path:"id" json:"conversation_id"`
}

type ResumeConversationResp struct {
	Resp         *basic.Response `json:"resp"`
	Conversation *Conversation   `json:"conversation"`
	Resumed      bool            `json:"resumed"`
}

type ArchiveConversationReq struct {
	ConversationId string `path:"id" json:"conversation_id"`
}

type ArchiveConversationResp struct {
	Resp         *basic.Response `json:"resp"`
	Conversation *Conversation   `json:"conversation"`
}

type InactivityStatusReq struct{}

type InactivityStatusResp struct {
	Resp           *basic.Response `json:"resp"`
	LastActivityAt int64           `json:"last_activity_at"`
	Inactive       bool            `json:"inactive"`
	Open           int             `json:"open"`
	PendingSummary int             `json:"pending_summary"`
}

type SummarizeInactiveReq struct{}

type SummarizeInactiveResp struct {
	Resp       *basic.Response `json:"resp"`
	Archived   int             `json:"archived"`
	Summarized int             `json:"summarized"`
	Failed     int             `json:"failed"`
}

type SweepReq struct{}

type SweepResp struct {
	Resp       *basic.Response `json:"resp"`
	Archived   int             `json:"archived"`
	Summarized int             `json:"summarized"`
	Failed     int             `json:"failed"`
}
