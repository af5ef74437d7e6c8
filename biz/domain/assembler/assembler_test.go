package assembler_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xh-polaris/mindy-core-api/biz/domain/assembler"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory/history"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/sqlite"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	m     *mapper.Mappers
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	m := mapper.NewSQLite(db)
	return &fixture{m: m, store: memory.New(history.New(nil, m.Turn), m, func() time.Time { return t0 })}
}

func (f *fixture) assembler(lc config.Lifecycle) *assembler.Assembler {
	return assembler.New(f.store, f.m.Conversation, lc)
}

// conversation 创建对话并写入texts, 偶数位置为用户消息
func (f *fixture) conversation(t *testing.T, id, uid string, texts ...string) *conversation.Conversation {
	t.Helper()
	ctx := context.Background()
	c := &conversation.Conversation{
		ConversationId: id, UserId: uid, Status: cst.StatusActive,
		LastActivityAt: t0, CreateTime: t0, UpdateTime: t0,
	}
	require.NoError(t, f.m.Conversation.Insert(ctx, c))
	if len(texts) == 0 {
		return c
	}
	turns := make([]*turn.Turn, 0, len(texts))
	for i, text := range texts {
		role := cst.User
		if i%2 == 1 {
			role = cst.Assistant
		}
		turns = append(turns, &turn.Turn{ConversationId: id, UserId: uid, Role: role, Content: &turn.Content{Text: text}})
	}
	saved, err := f.store.Append(ctx, turns...)
	require.NoError(t, err)
	c.TurnCount = int64(len(saved))
	c.LastActivityAt = saved[len(saved)-1].CreateTime
	require.NoError(t, f.m.Conversation.Update(ctx, id, &conversation.Update{
		Status: c.Status, TurnCount: c.TurnCount, LastActivityAt: c.LastActivityAt, Now: t0,
	}))
	return c
}

func (f *fixture) summarize(t *testing.T, c *conversation.Conversation, summary string, through int64) {
	t.Helper()
	ok, err := f.m.Conversation.UpdateSummary(context.Background(), c.ConversationId, c.SummarizedThrough,
		&conversation.SummaryUpdate{Summary: summary, Through: through, Now: t0})
	require.NoError(t, err)
	require.True(t, ok)
	c.Summary, c.SummarizedThrough = summary, through
}

func contents(msgs []*schema.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestBuildOrdersSummaryWindowAndMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lc := config.DefaultLifecycle()
	lc.WindowTurns = 3
	c := f.conversation(t, "c1", "u1", "u0", "a1", "u2", "a3", "u4", "a5")
	f.summarize(t, c, "The user talked about sleep.", 2)

	out, err := f.assembler(lc).Build(ctx, c, "what now?", false)
	require.NoError(t, err)

	require.Len(t, out.Messages, 5)
	assert.Equal(t, schema.System, out.Messages[0].Role)
	assert.Contains(t, out.Messages[0].Content, "The user talked about sleep.")
	// 只保留最近的WindowTurns条未被摘要的消息, 按时间正序
	assert.Equal(t, []string{"a3", "u4", "a5", "what now?"}, contents(out.Messages[1:]))
	assert.Equal(t, schema.Assistant, out.Messages[1].Role)
	assert.Equal(t, schema.User, out.Messages[4].Role)
	assert.Equal(t, 1, out.Summaries)
	assert.Equal(t, 3, out.Turns)
	assert.Equal(t, assembler.EstimateMessages(out.Messages), out.Tokens)
	assert.Equal(t, int64(3), out.OmittedBefore)
}

func TestBuildSkipsSummarizedTurns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.conversation(t, "c1", "u1", "u0", "a1", "u2", "a3")
	f.summarize(t, c, "summary", 4)

	out, err := f.assembler(config.DefaultLifecycle()).Build(ctx, c, "next", false)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "next", out.Messages[1].Content)
	assert.Equal(t, 0, out.Turns)
	assert.Equal(t, int64(0), out.OmittedBefore)
}

func TestBuildTrimsToBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lc := config.DefaultLifecycle()
	long := strings.Repeat("word ", 200)
	c := f.conversation(t, "c1", "u1", long, long, "short question", "short answer")
	lc.TokenBudget = 40

	out, err := f.assembler(lc).Build(ctx, c, "and then?", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"short question", "short answer", "and then?"}, contents(out.Messages))
	assert.LessOrEqual(t, out.Tokens, lc.TokenBudget)
	// 被丢弃的两条消息没有被摘要覆盖
	assert.Equal(t, int64(2), out.OmittedBefore)
}

type brokenTurns struct{}

func (brokenTurns) List(context.Context, *conversation.Conversation, *turn.ListOption) ([]*turn.Turn, error) {
	return nil, errors.New("store down")
}

type brokenConversations struct {
	conversation.Mapper
}

func (brokenConversations) ListWithSummary(context.Context, string, []string, string, int64) ([]*conversation.Conversation, error) {
	return nil, errors.New("store down")
}

func TestStoreFailureIsContextUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lc := config.DefaultLifecycle()
	c := f.conversation(t, "c1", "u1", "hello", "hi")

	out, err := assembler.New(brokenTurns{}, f.m.Conversation, lc).Build(ctx, c, "again", false)
	assert.Nil(t, out)
	assert.Equal(t, int32(errno.ContextUnavailableErrCode), errorx.CodeOf(err))

	a := assembler.New(f.store, brokenConversations{Mapper: f.m.Conversation}, lc)
	greeting, err := a.BuildGreeting(ctx, "u1", "")
	assert.Nil(t, greeting)
	assert.Equal(t, int32(errno.ContextUnavailableErrCode), errorx.CodeOf(err))

	fresh := f.conversation(t, "fresh", "u1")
	out, err = a.Build(ctx, fresh, "hi", false)
	assert.Nil(t, out)
	assert.Equal(t, int32(errno.ContextUnavailableErrCode), errorx.CodeOf(err))
}

func TestBuildResumeHint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.conversation(t, "c1", "u1", "hello", "hi")

	out, err := f.assembler(config.DefaultLifecycle()).Build(ctx, c, "I'm back", true)
	require.NoError(t, err)
	require.Len(t, out.Messages, 4)
	assert.Equal(t, schema.System, out.Messages[0].Role)
	assert.Contains(t, out.Messages[0].Content, "returning")
	assert.Equal(t, 0, out.Summaries)
}

func TestCrossConversationUsesOnlySummaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.conversation(t, "old", "u1", "my SECRET-DETAIL is here", "thanks for sharing")
	f.summarize(t, old, "Discussed stress at work.", 2)
	_, err := f.m.Conversation.Archive(ctx, old.ConversationId, time.Time{}, t0)
	require.NoError(t, err)
	// 其它用户的对话不参与
	other := f.conversation(t, "other", "u2", "unrelated", "ok")
	f.summarize(t, other, "Someone else.", 2)
	_, err = f.m.Conversation.Archive(ctx, other.ConversationId, time.Time{}, t0)
	require.NoError(t, err)

	a := f.assembler(config.DefaultLifecycle())

	greeting, err := a.BuildGreeting(ctx, "u1", "fresh")
	require.NoError(t, err)
	require.Len(t, greeting.Messages, 2)
	assert.Equal(t, 1, greeting.Summaries)
	assert.Contains(t, greeting.Messages[0].Content, "Discussed stress at work.")
	assert.Equal(t, schema.User, greeting.Messages[1].Role)

	fresh := f.conversation(t, "fresh", "u1")
	out, err := a.Build(ctx, fresh, "Hi again", false)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Contains(t, out.Messages[0].Content, "Discussed stress at work.")

	for _, msgs := range [][]*schema.Message{greeting.Messages, out.Messages} {
		for _, m := range msgs {
			assert.NotContains(t, m.Content, "SECRET-DETAIL")
			assert.NotContains(t, m.Content, "thanks for sharing")
			assert.NotContains(t, m.Content, "Someone else.")
		}
	}

	// 首位用户没有任何摘要
	first, err := a.BuildGreeting(ctx, "u3", "")
	require.NoError(t, err)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, 0, first.Summaries)

	lc := config.DefaultLifecycle()
	lc.CrossConversationSummaries = 0
	none, err := f.assembler(lc).BuildGreeting(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, none.Messages, 1)
}
