package registry

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/biz/infra/metrics"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

// ArchiveListener 对话被归档后收到通知, 用于触发摘要
type ArchiveListener interface {
	OnArchived(ctx context.Context, c *conversation.Conversation)
}

// Registry 对话登记处, 负责对话的创建, 鉴权与状态流转
// 不活跃对话在访问时惰性归档, 与sweeper的归档结果一致
type Registry struct {
	conversations conversation.Mapper
	lifecycle     config.Lifecycle
	listener      ArchiveListener
	now           func() time.Time
}

func New(m *mapper.Mappers, lifecycle config.Lifecycle, listener ArchiveListener, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{conversations: m.Conversation, lifecycle: lifecycle, listener: listener, now: now}
}

// Now 当前时间, 统一为UTC毫秒精度
func (r *Registry) Now() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// Create 为用户创建一个新的active对话
func (r *Registry) Create(ctx context.Context, uid string) (*conversation.Conversation, error) {
	c, err := r.Draft(uid)
	if err != nil {
		return nil, err
	}
	if err = r.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Draft 生成一个尚未保存的新对话
func (r *Registry) Draft(uid string) (*conversation.Conversation, error) {
	if uid == "" {
		return nil, errorx.New(errno.ValidationErrCode, errorx.KV("reason", "user id is required"))
	}
	now := r.Now()
	return &conversation.Conversation{
		ConversationId: uuid.NewString(),
		UserId:         uid,
		Status:         cst.StatusActive,
		TokenUsage:     map[string]int64{},
		LastActivityAt: now,
		CreateTime:     now,
		UpdateTime:     now,
	}, nil
}

// Insert 保存Draft生成的对话
func (r *Registry) Insert(ctx context.Context, c *conversation.Conversation) error {
	if err := r.conversations.Insert(ctx, c); err != nil {
		return errorx.WrapByCode(err, errno.ConversationCreateErrCode)
	}
	return nil
}

// Get 获取用户的对话并惰性检查不活跃状态
func (r *Registry) Get(ctx context.Context, uid, id string) (*conversation.Conversation, error) {
	c, err := r.find(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	return r.age(ctx, c, metrics.SourceLazy)
}

// ListByStatus 列出用户指定状态的对话, status为空时列出全部, 列出前先归档不活跃的对话
func (r *Registry) ListByStatus(ctx context.Context, uid, status string) ([]*conversation.Conversation, error) {
	var statuses []string
	if status != "" {
		if !ValidStatus(status) {
			return nil, errorx.New(errno.ValidationErrCode, errorx.KV("reason", "unknown status "+status))
		}
		statuses = append(statuses, status)
	}
	if _, err := r.AgeUser(ctx, uid); err != nil {
		return nil, err
	}
	cs, err := r.conversations.ListByStatus(ctx, uid, statuses...)
	if err != nil {
		return nil, errorx.WrapByCode(err, errno.ConversationListErrCode)
	}
	return cs, nil
}

// AgeUser 检查用户所有未归档的对话, 返回检查后的对话
func (r *Registry) AgeUser(ctx context.Context, uid string) ([]*conversation.Conversation, error) {
	open, err := r.conversations.ListByStatus(ctx, uid, cst.StatusActive, cst.StatusInProgress)
	if err != nil {
		return nil, errorx.WrapByCode(err, errno.ConversationListErrCode)
	}
	for i, c := range open {
		if open[i], err = r.age(ctx, c, metrics.SourceLazy); err != nil {
			return nil, err
		}
	}
	return open, nil
}

// ArchiveIdle 分批归档所有超过不活跃阈值的对话, 返回本次归档的数量
func (r *Registry) ArchiveIdle(ctx context.Context) (archived int, err error) {
	batch := r.lifecycle.SweepBatch
	if batch <= 0 {
		batch = 100
	}
	before := r.Now().Add(-r.lifecycle.InactivityThreshold)
	for {
		idle, err := r.conversations.ListIdle(ctx, before, batch)
		if err != nil {
			return archived, errorx.WrapByCode(err, errno.ConversationSweepErrCode)
		}
		for _, c := range idle {
			ok, err := r.archive(ctx, c, before, metrics.SourceSweep)
			if err != nil {
				return archived, err
			}
			if ok {
				archived++
			}
		}
		if int64(len(idle)) < batch {
			return archived, nil
		}
	}
}

// Archive 用户显式结束对话, 对已归档的对话无影响
func (r *Registry) Archive(ctx context.Context, uid, id string) (*conversation.Conversation, error) {
	c, err := r.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if c.IsArchived() {
		return c, nil
	}
	if _, err = r.archive(ctx, c, time.Time{}, metrics.SourceExplicit); err != nil {
		return nil, err
	}
	return r.reload(ctx, c.ConversationId, errno.ConversationArchiveErrCode)
}

// Resume 将已归档的对话重新激活, resumed表示是否发生了状态变化
func (r *Registry) Resume(ctx context.Context, uid, id string) (c *conversation.Conversation, resumed bool, err error) {
	if c, err = r.Get(ctx, uid, id); err != nil {
		return nil, false, err
	}
	if !c.IsArchived() {
		return c, false, nil
	}
	if resumed, err = r.conversations.Reactivate(ctx, c.ConversationId, r.Now()); err != nil {
		return nil, false, errorx.WrapByCode(err, errno.ConversationResumeErrCode)
	}
	if resumed {
		metrics.Reactivated.Inc()
	}
	c, err = r.reload(ctx, c.ConversationId, errno.ConversationResumeErrCode)
	return c, resumed, err
}

// Exchange 一轮对话的结果
type Exchange struct {
	Turns []*turn.Turn
	Model string
	Usage map[string]int64
}

// Record 将一轮对话写回对话状态, 需要与消息写入处于同一事务, 返回本轮是否使已归档的对话重新激活
// 生成回复期间对话可能已被归档, 此时按最新状态重新计算
func (r *Registry) Record(ctx context.Context, c *conversation.Conversation, ex *Exchange) (bool, error) {
	if len(ex.Turns) == 0 {
		return false, nil
	}
	u, reactivated := r.next(c, ex)
	err := r.conversations.Update(ctx, c.ConversationId, u)
	if errors.Is(err, conversation.ErrStale) {
		latest, ferr := r.conversations.FindOne(ctx, c.ConversationId)
		if ferr != nil {
			return false, errorx.WrapByCode(ferr, errno.ConversationChatErrCode)
		}
		logs.CtxInfof(ctx, "[registry] conversation %s became %s while replying", c.ConversationId, latest.Status)
		*c = *latest
		u, reactivated = r.next(c, ex)
		err = r.conversations.Update(ctx, c.ConversationId, u)
	}
	if err != nil {
		return false, errorx.WrapByCode(err, errno.ConversationChatErrCode)
	}
	if reactivated {
		metrics.Reactivated.Inc()
	}

	c.Status, c.Archived, c.ActiveUserTurns = u.Status, u.Status == cst.StatusArchived, u.ActiveUserTurns
	c.TurnCount, c.LastActivityAt, c.UpdateTime = u.TurnCount, u.LastActivityAt, u.Now
	if u.Title != "" {
		c.Title = u.Title
	}
	if ex.Model != "" {
		c.Model = ex.Model
	}
	c.TokenUsage = conversation.MergeUsage(c.TokenUsage, ex.Usage)
	return reactivated, nil
}

// Invalidate 事务提交后失效对话缓存
func (r *Registry) Invalidate(ctx context.Context, id string) {
	if err := r.conversations.Invalidate(ctx, id); err != nil {
		logs.CtxErrorf(ctx, "[registry] invalidate %s err: %s", id, errorx.ErrorWithoutStack(err))
	}
}

// next 根据写入前的状态c计算一轮对话后的状态
func (r *Registry) next(c *conversation.Conversation, ex *Exchange) (*conversation.Update, bool) {
	status, activeUserTurns := c.Status, c.ActiveUserTurns
	reactivated := c.IsArchived()
	if reactivated { // 新消息使已归档的对话重新激活, 重新计数
		activeUserTurns = 0
	}
	title := ""
	for _, t := range ex.Turns {
		if t.Role != cst.User {
			continue
		}
		status = Transition(status, EventUserTurn, activeUserTurns)
		activeUserTurns++
		if c.Title == "" && title == "" {
			title = Title(t.Text(), r.lifecycle.TitleLength)
		}
	}
	return &conversation.Update{
		Expect:          c.Status,
		Status:          status,
		TurnCount:       c.TurnCount + int64(len(ex.Turns)),
		ActiveUserTurns: activeUserTurns,
		LastActivityAt:  ex.Turns[len(ex.Turns)-1].CreateTime,
		Title:           title,
		Model:           ex.Model,
		Usage:           ex.Usage,
		Now:             r.Now(),
	}, reactivated && status != cst.StatusArchived
}

// Inactivity 用户的不活跃状态
type Inactivity struct {
	LastActivityAt time.Time
	Inactive       bool
	Open           int // 未归档的对话数
	PendingSummary int // 已归档但仍有未摘要消息的对话数
}

// InactivityStatus 计算用户的不活跃状态, 计算前先归档不活跃的对话
func (r *Registry) InactivityStatus(ctx context.Context, uid string) (*Inactivity, error) {
	if _, err := r.AgeUser(ctx, uid); err != nil {
		return nil, err
	}
	cs, err := r.conversations.ListByStatus(ctx, uid)
	if err != nil {
		return nil, errorx.WrapByCode(err, errno.ConversationStatusErrCode)
	}
	st := &Inactivity{}
	for _, c := range cs {
		if c.LastActivityAt.After(st.LastActivityAt) {
			st.LastActivityAt = c.LastActivityAt
		}
		if !c.IsArchived() {
			st.Open++
		} else if c.TurnCount >= cst.MinSummaryTurns && c.LiveTurns() > 0 {
			st.PendingSummary++
		}
	}
	st.Inactive = st.LastActivityAt.IsZero() || r.Now().Sub(st.LastActivityAt) > r.lifecycle.InactivityThreshold
	return st, nil
}

// Title 取消息的前n个字符作为标题
func Title(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}

func (r *Registry) find(ctx context.Context, uid, id string) (*conversation.Conversation, error) {
	if id == "" {
		return nil, errorx.New(errno.ValidationErrCode, errorx.KV("reason", "conversation id is required"))
	}
	c, err := r.conversations.FindOne(ctx, id)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, errorx.New(errno.NotFoundErrCode, errorx.KV("kind", "conversation"))
	} else if err != nil {
		return nil, errorx.WrapByCode(err, errno.ConversationGetErrCode)
	}
	if c.UserId != uid {
		return nil, errorx.New(errno.AuthorizationErrCode)
	}
	return c, nil
}

// age 对不活跃的对话执行条件归档, 返回最新的对话
func (r *Registry) age(ctx context.Context, c *conversation.Conversation, source string) (*conversation.Conversation, error) {
	now := r.Now()
	if !IsIdle(c, now, r.lifecycle.InactivityThreshold) {
		return c, nil
	}
	if _, err := r.archive(ctx, c, now.Add(-r.lifecycle.InactivityThreshold), source); err != nil {
		return nil, err
	}
	return r.reload(ctx, c.ConversationId, errno.ConversationGetErrCode)
}

// archive 条件归档, 只有本次调用改变了状态时才通知监听者
func (r *Registry) archive(ctx context.Context, c *conversation.Conversation, idleBefore time.Time, source string) (bool, error) {
	ok, err := r.conversations.Archive(ctx, c.ConversationId, idleBefore, r.Now())
	if err != nil {
		return false, errorx.WrapByCode(err, errno.ConversationArchiveErrCode)
	}
	if !ok {
		return false, nil
	}
	metrics.Archived.WithLabelValues(source).Inc()
	logs.CtxInfof(ctx, "[registry] conversation %s archived (%s)", c.ConversationId, source)
	if r.listener != nil {
		archived := *c
		archived.Status, archived.Archived = cst.StatusArchived, true
		r.listener.OnArchived(ctx, &archived)
	}
	return true, nil
}

func (r *Registry) reload(ctx context.Context, id string, code int32) (*conversation.Conversation, error) {
	c, err := r.conversations.FindOne(ctx, id)
	if err != nil {
		return nil, errorx.WrapByCode(err, code)
	}
	return c, nil
}
