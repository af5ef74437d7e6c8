package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory/history"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

// Store 对话消息的只追加账本, 不提供修改与删除
type Store struct {
	his           *history.HistoryManager
	conversations conversation.Mapper
	turns         turn.Mapper
	tx            mapper.Transactor
	now           func() time.Time
}

func New(his *history.HistoryManager, m *mapper.Mappers, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{his: his, conversations: m.Conversation, turns: m.Turn, tx: m.Transactor, now: now}
}

// Append 追加一组属于同一对话的消息, 分配id, index与严格递增的创建时间
// 所有消息在一个事务中写入, 处于外层事务中时加入外层事务
func (s *Store) Append(ctx context.Context, turns ...*turn.Turn) ([]*turn.Turn, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	for _, t := range turns {
		if err := validate(t, turns[0]); err != nil {
			return nil, err
		}
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.conversations.FindOne(ctx, turns[0].ConversationId)
		if errors.Is(err, conversation.ErrNotFound) {
			return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "conversation does not exist"))
		} else if err != nil {
			return errorx.WrapByCode(err, errno.TurnAppendErrCode)
		}
		if c.UserId != turns[0].UserId {
			return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "turn user does not own the conversation"))
		}

		last, err := s.turns.List(ctx, c.ConversationId, &turn.ListOption{Newest: true, Limit: 1})
		if err != nil {
			return errorx.WrapByCode(err, errno.TurnAppendErrCode)
		}
		var index int64
		var at time.Time
		if len(last) > 0 {
			index, at = last[0].Index+1, last[0].CreateTime
		}
		for _, t := range turns {
			at = next(s.now(), at)
			t.TurnId, t.Index, t.CreateTime = uuid.NewString(), index, at
			index++
		}
		if err = s.turns.InsertMany(ctx, turns); err != nil {
			return errorx.WrapByCode(err, errno.TurnAppendErrCode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// List 读取对话的消息, 默认按index升序
func (s *Store) List(ctx context.Context, c *conversation.Conversation, opt *turn.ListOption) ([]*turn.Turn, error) {
	turns, err := s.his.Retrieve(ctx, c.ConversationId, c.TurnCount, opt)
	if err != nil {
		return nil, errorx.WrapByCode(err, errno.TurnListErrCode)
	}
	return turns, nil
}

// Remember 事务提交后将新消息写入缓存, 失败只记录日志
func (s *Store) Remember(ctx context.Context, conversationId string, turns []*turn.Turn) {
	if err := s.his.Cache(ctx, conversationId, turns); err != nil {
		logs.CtxErrorf(ctx, "[memory] cache turns err: %s", errorx.ErrorWithoutStack(err))
	}
}

func validate(t, first *turn.Turn) error {
	switch {
	case t == nil:
		return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "turn is nil"))
	case t.Role != cst.User && t.Role != cst.Assistant:
		return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "role must be user or assistant"))
	case strings.TrimSpace(t.Text()) == "":
		return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "turn content is empty"))
	case t.ConversationId == "" || t.ConversationId != first.ConversationId:
		return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "turns must belong to one conversation"))
	case t.UserId == "" || t.UserId != first.UserId:
		return errorx.New(errno.ValidationErrCode, errorx.KV("reason", "turns must belong to one user"))
	}
	return nil
}

// next 返回毫秒精度下严格晚于last的时间
func next(now, last time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(last) {
		return last.Add(time.Millisecond)
	}
	return now
}
