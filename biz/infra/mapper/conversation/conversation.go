package conversation

import (
	"errors"
	"time"

	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
)

var (
	ErrNotFound = errors.New("conversation not found")
	// ErrStale 对话的状态已不是写入前观察到的状态
	ErrStale = errors.New("conversation status changed")
)

// Conversation 一次对话, 归属于唯一的用户, 不会被物理删除
type Conversation struct {
	ConversationId    string           `json:"conversation_id" bson:"_id"`
	UserId            string           `json:"user_id" bson:"user_id"`
	Title             string           `json:"title" bson:"title"`                                         // 首条用户消息生成, 设置后不再修改
	Summary           string           `json:"summary,omitempty" bson:"summary,omitempty"`                 // 累计摘要
	SummarizedThrough int64            `json:"summarized_through" bson:"summarized_through"`               // 摘要覆盖的消息数, index小于该值的消息已被摘要
	SummaryClaimUntil time.Time        `json:"-" bson:"summary_claim_until,omitempty"`                     // 摘要任务租约
	Model             string           `json:"model,omitempty" bson:"model,omitempty"`                     // 最近一次回复使用的模型
	TokenUsage        map[string]int64 `json:"token_usage,omitempty" bson:"token_usage,omitempty"`         // 累计用量, 只增不减
	Status            string           `json:"status" bson:"status"`                                       // active/in-progress/archived
	Archived          bool             `json:"archived" bson:"archived"`                                   // 与status == archived保持一致
	TurnCount         int64            `json:"turn_count" bson:"turn_count"`                               // 消息数
	ActiveUserTurns   int64            `json:"active_user_turns" bson:"active_user_turns"`                 // 创建或重新激活后的用户消息数
	LastActivityAt    time.Time        `json:"last_activity_at" bson:"last_activity_at"`                   // 最近活跃时间
	CreateTime        time.Time        `json:"created_at" bson:"created_at"`                               // 创建时间
	UpdateTime        time.Time        `json:"updated_at" bson:"updated_at"`                               // 更新时间
}

// Update 一轮对话后需要写回的状态, 由Registry计算
type Update struct {
	Expect          string // 写入前观察到的状态, 不为空时只在状态一致时写入
	Status          string
	TurnCount       int64
	ActiveUserTurns int64
	LastActivityAt  time.Time
	Title           string           // 为空时不更新
	Model           string           // 为空时不更新
	Usage           map[string]int64 // 累加到TokenUsage
	Now             time.Time
}

// SummaryUpdate 摘要结果
type SummaryUpdate struct {
	Summary string
	Through int64
	Usage   map[string]int64
	Now     time.Time
}

// LiveTurns 尚未被摘要覆盖的消息数
func (c *Conversation) LiveTurns() int64 {
	if n := c.TurnCount - c.SummarizedThrough; n > 0 {
		return n
	}
	return 0
}

// IsArchived 对话是否已归档
func (c *Conversation) IsArchived() bool {
	return c.Status == cst.StatusArchived
}

// MergeUsage 将delta累加到usage中, 负数忽略以保证单调
func MergeUsage(usage, delta map[string]int64) map[string]int64 {
	if usage == nil {
		usage = make(map[string]int64, len(delta))
	}
	for k, v := range delta {
		if v > 0 {
			usage[k] += v
		}
	}
	return usage
}
