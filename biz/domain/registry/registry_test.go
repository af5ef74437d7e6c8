package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xh-polaris/mindy-core-api/biz/domain/registry"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/sqlite"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type listener struct {
	mu       sync.Mutex
	archived []string
}

func (l *listener) OnArchived(_ context.Context, c *conversation.Conversation) {
	l.mu.Lock()
	l.archived = append(l.archived, c.ConversationId)
	l.mu.Unlock()
}

func (l *listener) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.archived...)
}

func newRegistry(t *testing.T) (*registry.Registry, *mapper.Mappers, *clock, *listener) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	m := mapper.NewSQLite(db)
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := &listener{}
	return registry.New(m, config.DefaultLifecycle(), l, clk.Now), m, clk, l
}

func userTurn(text string, at time.Time) *turn.Turn {
	return &turn.Turn{Role: cst.User, Content: &turn.Content{Text: text}, CreateTime: at}
}

func assistantTurn(text string, at time.Time) *turn.Turn {
	return &turn.Turn{Role: cst.Assistant, Content: &turn.Content{Text: text}, CreateTime: at}
}

func record(t *testing.T, r *registry.Registry, c *conversation.Conversation, text string) {
	t.Helper()
	now := r.Now()
	_, err := r.Record(context.Background(), c, &registry.Exchange{
		Turns: []*turn.Turn{userTurn(text, now), assistantTurn("ok", now.Add(time.Millisecond))},
		Model: "support-model",
		Usage: map[string]int64{cst.TotalTokens: 10},
	})
	require.NoError(t, err)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newRegistry(t)

	_, err := r.Create(ctx, "")
	assert.Equal(t, int32(errno.ValidationErrCode), errorx.CodeOf(err))

	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cst.StatusActive, c.Status)
	assert.Equal(t, int64(0), c.TurnCount)

	got, err := r.Get(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, c.ConversationId, got.ConversationId)

	_, err = r.Get(ctx, "u2", c.ConversationId)
	assert.Equal(t, int32(errno.AuthorizationErrCode), errorx.CodeOf(err))

	_, err = r.Get(ctx, "u1", "missing")
	assert.Equal(t, int32(errno.NotFoundErrCode), errorx.CodeOf(err))
}

func TestRecordTransitions(t *testing.T) {
	ctx := context.Background()
	r, m, clk, _ := newRegistry(t)
	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)

	record(t, r, c, "Hi, I need help with anxiety")
	assert.Equal(t, cst.StatusActive, c.Status)
	assert.Equal(t, "Hi, I need help with anxiety", c.Title)
	assert.Equal(t, int64(2), c.TurnCount)

	clk.Advance(time.Minute)
	record(t, r, c, "It gets worse at night")
	assert.Equal(t, cst.StatusInProgress, c.Status)
	// 标题只在首条用户消息时设置
	assert.Equal(t, "Hi, I need help with anxiety", c.Title)

	stored, err := m.Conversation.FindOne(ctx, c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusInProgress, stored.Status)
	assert.Equal(t, int64(4), stored.TurnCount)
	assert.Equal(t, int64(2), stored.ActiveUserTurns)
	assert.Equal(t, "support-model", stored.Model)
	assert.Equal(t, int64(20), stored.TokenUsage[cst.TotalTokens])
	assert.Equal(t, c.TokenUsage, stored.TokenUsage)
	assert.True(t, stored.LastActivityAt.Equal(c.LastActivityAt))
}

func TestLazyArchiveOnGet(t *testing.T) {
	ctx := context.Background()
	r, _, clk, l := newRegistry(t)
	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)

	clk.Advance(15 * time.Minute)
	got, err := r.Get(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusActive, got.Status)

	clk.Advance(time.Millisecond)
	got, err = r.Get(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusArchived, got.Status)
	assert.True(t, got.Archived)
	assert.Equal(t, []string{c.ConversationId}, l.ids())

	// 再次访问不会重复通知
	_, err = r.Get(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.Len(t, l.ids(), 1)
}

func TestArchiveIdleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _, clk, l := newRegistry(t)
	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx, "u1")
		require.NoError(t, err)
	}
	clk.Advance(10 * time.Minute)
	fresh, err := r.Create(ctx, "u1")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	n, err := r.ArchiveIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = r.ArchiveIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, l.ids(), 3)

	open, err := r.ListByStatus(ctx, "u1", cst.StatusActive)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, fresh.ConversationId, open[0].ConversationId)

	_, err = r.ListByStatus(ctx, "u1", "closed")
	assert.Equal(t, int32(errno.ValidationErrCode), errorx.CodeOf(err))
}

func TestArchiveAndResume(t *testing.T) {
	ctx := context.Background()
	r, _, _, l := newRegistry(t)
	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)
	record(t, r, c, "hello")
	record(t, r, c, "again")
	require.Equal(t, cst.StatusInProgress, c.Status)

	archived, err := r.Archive(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusArchived, archived.Status)
	assert.Len(t, l.ids(), 1)

	again, err := r.Archive(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusArchived, again.Status)
	assert.Len(t, l.ids(), 1)

	resumed, ok, err := r.Resume(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cst.StatusActive, resumed.Status)
	assert.Equal(t, int64(0), resumed.ActiveUserTurns)
	assert.Equal(t, int64(4), resumed.TurnCount)

	_, ok, err = r.Resume(ctx, "u1", c.ConversationId)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordReactivatesArchived(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newRegistry(t)
	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)
	record(t, r, c, "one")
	record(t, r, c, "two")
	c, err = r.Archive(ctx, "u1", c.ConversationId)
	require.NoError(t, err)

	record(t, r, c, "back again")
	assert.Equal(t, cst.StatusActive, c.Status)
	assert.False(t, c.Archived)
	assert.Equal(t, int64(1), c.ActiveUserTurns)
	assert.Equal(t, int64(6), c.TurnCount)
}

func TestRecordAfterArchivedWhileReplying(t *testing.T) {
	ctx := context.Background()
	r, m, clk, l := newRegistry(t)
	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)
	record(t, r, c, "one")
	record(t, r, c, "two")
	require.Equal(t, cst.StatusInProgress, c.Status)

	// 生成回复期间对话超时并被sweeper归档, c仍是归档前读取的状态
	clk.Advance(16 * time.Minute)
	n, err := r.ArchiveIdle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, l.ids(), 1)

	now := r.Now()
	reactivated, err := r.Record(ctx, c, &registry.Exchange{
		Turns: []*turn.Turn{userTurn("three", now), assistantTurn("ok", now.Add(time.Millisecond))},
	})
	require.NoError(t, err)
	assert.True(t, reactivated)
	assert.Equal(t, cst.StatusActive, c.Status)
	assert.Equal(t, int64(1), c.ActiveUserTurns)
	assert.Equal(t, int64(6), c.TurnCount)

	stored, err := m.Conversation.FindOne(ctx, c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusActive, stored.Status)
	assert.False(t, stored.Archived)
	assert.Equal(t, int64(1), stored.ActiveUserTurns)
	assert.Equal(t, int64(6), stored.TurnCount)

	// 状态未变化时不重新激活
	reactivated, err = r.Record(ctx, c, &registry.Exchange{
		Turns: []*turn.Turn{userTurn("four", now.Add(time.Second)), assistantTurn("ok", now.Add(2*time.Second))},
	})
	require.NoError(t, err)
	assert.False(t, reactivated)
	assert.Equal(t, cst.StatusInProgress, c.Status)
}

func TestInactivityStatus(t *testing.T) {
	ctx := context.Background()
	r, _, clk, _ := newRegistry(t)

	st, err := r.InactivityStatus(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, st.Inactive)
	assert.True(t, st.LastActivityAt.IsZero())

	c, err := r.Create(ctx, "u1")
	require.NoError(t, err)
	record(t, r, c, "hello")

	st, err = r.InactivityStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, st.Inactive)
	assert.Equal(t, 1, st.Open)
	assert.Equal(t, 0, st.PendingSummary)

	clk.Advance(20 * time.Minute)
	st, err = r.InactivityStatus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Inactive)
	assert.Equal(t, 0, st.Open)
	assert.Equal(t, 1, st.PendingSummary)
}
