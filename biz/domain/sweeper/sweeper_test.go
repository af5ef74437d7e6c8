package sweeper_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xh-polaris/mindy-core-api/biz/domain/agent"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory/history"
	"github.com/xh-polaris/mindy-core-api/biz/domain/registry"
	"github.com/xh-polaris/mindy-core-api/biz/domain/summarizer"
	"github.com/xh-polaris/mindy-core-api/biz/domain/sweeper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/sqlite"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
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

type fixture struct {
	m     *mapper.Mappers
	clk   *clock
	reg   *registry.Registry
	store *memory.Store
	fail  atomic.Bool
	sw    *sweeper.Sweeper
}

func newFixture(t *testing.T, lc config.Lifecycle) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f := &fixture{m: mapper.NewSQLite(db), clk: &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}}
	gen := agent.Func(func(ctx context.Context, p *agent.Prompt) (*agent.Reply, error) {
		if f.fail.Load() {
			return nil, errors.New("model down")
		}
		return &agent.Reply{Text: "a short summary"}, nil
	})
	f.reg = registry.New(f.m, lc, nil, f.clk.Now)
	f.store = memory.New(history.New(nil, f.m.Turn), f.m, f.clk.Now)
	s := summarizer.New(f.m.Conversation, f.store, gen, lc, f.clk.Now)
	f.sw = sweeper.New(f.reg, f.m.Conversation, s, lc)
	return f
}

// conversation 为u1创建一个有n条消息的对话
func (f *fixture) conversation(t *testing.T, n int) *conversation.Conversation {
	t.Helper()
	return f.conversationOf(t, "u1", n)
}

func (f *fixture) conversationOf(t *testing.T, uid string, n int) *conversation.Conversation {
	t.Helper()
	ctx := context.Background()
	c, err := f.reg.Create(ctx, uid)
	require.NoError(t, err)
	turns := make([]*turn.Turn, 0, n)
	for i := 0; i < n; i++ {
		role := cst.User
		if i%2 == 1 {
			role = cst.Assistant
		}
		turns = append(turns, &turn.Turn{ConversationId: c.ConversationId, UserId: uid, Role: role,
			Content: &turn.Content{Text: fmt.Sprintf("turn %d", i)}})
	}
	saved, err := f.store.Append(ctx, turns...)
	require.NoError(t, err)
	_, err = f.reg.Record(ctx, c, &registry.Exchange{Turns: saved})
	require.NoError(t, err)
	return c
}

func TestRunOnceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.DefaultLifecycle())
	a := f.conversation(t, 4)
	b := f.conversation(t, 2)
	short := f.conversation(t, 1)

	// 未超过阈值时什么都不做
	report, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{}, *report)

	f.clk.Advance(16 * time.Minute)
	report, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Archived)
	assert.Equal(t, 2, report.Summarized)
	assert.Equal(t, 0, report.Failed)

	for _, c := range []*conversation.Conversation{a, b} {
		got, err := f.m.Conversation.FindOne(ctx, c.ConversationId)
		require.NoError(t, err)
		assert.Equal(t, cst.StatusArchived, got.Status)
		assert.Equal(t, "a short summary", got.Summary)
		assert.Equal(t, got.TurnCount, got.SummarizedThrough)
	}
	got, err := f.m.Conversation.FindOne(ctx, short.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusArchived, got.Status)
	assert.Empty(t, got.Summary)

	report, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{}, *report)
}

func TestRunUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.DefaultLifecycle())
	a := f.conversation(t, 4)
	f.conversation(t, 1)
	other := f.conversationOf(t, "u2", 4)

	report, err := f.sw.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{}, *report)

	f.clk.Advance(16 * time.Minute)
	report, err = f.sw.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{Archived: 2, Summarized: 1}, *report)
	got, err := f.m.Conversation.FindOne(ctx, a.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, "a short summary", got.Summary)
	assert.Equal(t, int64(4), got.SummarizedThrough)

	// 其它用户的对话不受影响
	got, err = f.m.Conversation.FindOne(ctx, other.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, cst.StatusInProgress, got.Status)
	assert.Empty(t, got.Summary)

	report, err = f.sw.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{}, *report)

	// 摘要失败后再次调用时补齐
	b := f.conversation(t, 2)
	f.clk.Advance(16 * time.Minute)
	f.fail.Store(true)
	report, err = f.sw.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{Archived: 1, Failed: 1}, *report)
	f.fail.Store(false)
	report, err = f.sw.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{Summarized: 1}, *report)
	got, err = f.m.Conversation.FindOne(ctx, b.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SummarizedThrough)
}

func TestRunOnceRetriesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.DefaultLifecycle())
	c := f.conversation(t, 4)

	f.fail.Store(true)
	f.clk.Advance(16 * time.Minute)
	report, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Archived)
	assert.Equal(t, 1, report.Failed)

	f.fail.Store(false)
	report, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Archived)
	assert.Equal(t, 1, report.Summarized)

	got, err := f.m.Conversation.FindOne(ctx, c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.SummarizedThrough)
}

func TestRunOnceSkipsTooShortPending(t *testing.T) {
	ctx := context.Background()
	lc := config.DefaultLifecycle()
	lc.SweepBatch = 2
	f := newFixture(t, lc)
	// 只有开场白的对话排在最前面, 且永远不会被摘要
	f.conversation(t, 1)
	f.conversation(t, 1)
	f.clk.Advance(time.Minute)
	c := f.conversation(t, 4)

	f.fail.Store(true)
	f.clk.Advance(16 * time.Minute)
	report, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Archived)
	assert.Equal(t, 1, report.Failed)

	st, err := f.reg.InactivityStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.PendingSummary)

	f.fail.Store(false)
	for i := 0; i < 2; i++ {
		report, err = f.sw.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, sweeper.Report{Summarized: 1 - i}, *report)
	}
	got, err := f.m.Conversation.FindOne(ctx, c.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.SummarizedThrough)
	assert.Equal(t, "a short summary", got.Summary)

	st, err = f.reg.InactivityStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.PendingSummary)
}

func TestStartStop(t *testing.T) {
	lc := config.DefaultLifecycle()
	lc.SweepInterval = 10 * time.Millisecond
	f := newFixture(t, lc)
	c := f.conversation(t, 2)
	f.clk.Advance(time.Hour)

	f.sw.Start()
	f.sw.Start()
	require.Eventually(t, func() bool {
		got, err := f.m.Conversation.FindOne(context.Background(), c.ConversationId)
		return err == nil && got.Summary != ""
	}, 2*time.Second, 10*time.Millisecond)
	f.sw.Stop()
	f.sw.Stop()
}
