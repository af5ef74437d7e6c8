package agent

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
)

// Kind 智能体类型, 同一个Generator按类型选择模型与系统提示词
type Kind string

const (
	// KindIntake 开场问候
	KindIntake Kind = "intake"
	// KindSupport 对话中的支持回复
	KindSupport Kind = "support"
	// KindSummarizer 对话摘要
	KindSummarizer Kind = "summarizer"
)

// Kinds 全部智能体类型
var Kinds = []Kind{KindIntake, KindSupport, KindSummarizer}

// Prompt 一次生成请求, Messages按时间正序, 不包含智能体自身的系统提示词
type Prompt struct {
	Kind     Kind
	UserId   string
	Messages []*schema.Message
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Map 转换为累计用量使用的map
func (u Usage) Map() map[string]int64 {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return map[string]int64{
		cst.PromptTokens:     u.PromptTokens,
		cst.CompletionTokens: u.CompletionTokens,
		cst.TotalTokens:      total,
	}
}

// Reply 一次生成的结果
type Reply struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason string
}

// Generator 文本生成能力
// 调用失败或超时返回UpstreamErrCode, 内容被拒绝返回UpstreamRejectedErrCode
type Generator interface {
	Generate(ctx context.Context, p *Prompt) (*Reply, error)
}

// Func 将函数适配为Generator
type Func func(ctx context.Context, p *Prompt) (*Reply, error)

func (f Func) Generate(ctx context.Context, p *Prompt) (*Reply, error) {
	return f(ctx, p)
}
