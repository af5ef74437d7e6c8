package turn

import (
	"time"
)

// Turn 一条消息, 归属于用户或模型, 写入后不可修改
type Turn struct {
	TurnId         string    `json:"turn_id" bson:"_id"`                     // 主键
	ConversationId string    `json:"conversation_id" bson:"conversation_id"` // 归属的对话id
	UserId         string    `json:"user_id" bson:"user_id"`                 // 对话所属用户id
	Index          int64     `json:"index" bson:"index"`                     // 对话内从0开始的序号
	Role           string    `json:"role" bson:"role"`                       // user/assistant
	Content        *Content  `json:"content" bson:"content"`                 // 消息内容
	CreateTime     time.Time `json:"created_at" bson:"created_at"`           // 创建时间, 对话内严格递增
}

type Content struct {
	Text string `json:"text" bson:"text"`
}

// Text 返回消息文本, 内容为空时返回空串
func (t *Turn) Text() string {
	if t == nil || t.Content == nil {
		return ""
	}
	return t.Content.Text
}

// ListOption 查询条件, 零值表示不限制
type ListOption struct {
	From   int64     // index >= From
	To     int64     // index < To, 为0时不限制
	Before time.Time // created_at < Before
	Limit  int64     // 最多返回的条数
	Newest bool      // 从最新的消息开始取, 返回结果为倒序
}

// Filter 在内存中按ListOption筛选已按index升序排列的消息
func (o *ListOption) Filter(turns []*Turn) []*Turn {
	if o == nil {
		return turns
	}
	out := make([]*Turn, 0, len(turns))
	for _, t := range turns {
		if t.Index < o.From || (o.To > 0 && t.Index >= o.To) {
			continue
		}
		if !o.Before.IsZero() && !t.CreateTime.Before(o.Before) {
			continue
		}
		out = append(out, t)
	}
	if o.Newest {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if o.Limit > 0 && int64(len(out)) > o.Limit {
		out = out[:o.Limit]
	}
	return out
}
