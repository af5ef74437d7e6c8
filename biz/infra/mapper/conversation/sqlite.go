package conversation

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/sqlite"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
)

var _ Mapper = (*sqliteMapper)(nil)

const columns = `id, user_id, title, summary, summarized_through, summary_claim_until, model, token_usage,
	status, archived, turn_count, active_user_turns, last_activity_at, created_at, updated_at`

type sqliteMapper struct {
	db *sqlite.DB
}

func NewConversationSQLiteMapper(db *sqlite.DB) Mapper {
	return &sqliteMapper{db: db}
}

func (m *sqliteMapper) Insert(ctx context.Context, c *Conversation) error {
	usage, err := sonic.MarshalString(c.TokenUsage)
	if err != nil {
		return err
	}
	if c.TokenUsage == nil {
		usage = "{}"
	}
	_, err = m.db.Conn(ctx).ExecContext(ctx, `INSERT INTO conversations (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ConversationId, c.UserId, c.Title, c.Summary, c.SummarizedThrough, sqlite.Micro(c.SummaryClaimUntil),
		c.Model, usage, c.Status, c.Archived, c.TurnCount, c.ActiveUserTurns,
		sqlite.Micro(c.LastActivityAt), sqlite.Micro(c.CreateTime), sqlite.Micro(c.UpdateTime))
	if err != nil {
		logs.Errorf("[mapper] [conversation] [Insert] err:%s", errorx.ErrorWithoutStack(err))
	}
	return err
}

func (m *sqliteMapper) FindOne(ctx context.Context, id string) (*Conversation, error) {
	row := m.db.Conn(ctx).QueryRowContext(ctx, `SELECT `+columns+` FROM conversations WHERE id = ?`, id)
	c, err := scan(row)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	default:
		logs.Errorf("[mapper] [conversation] [FindOne] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
}

func (m *sqliteMapper) ListByStatus(ctx context.Context, uid string, statuses ...string) ([]*Conversation, error) {
	query := `SELECT ` + columns + ` FROM conversations WHERE user_id = ?`
	args := []any{uid}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY created_at DESC, id`
	return m.list(ctx, "ListByStatus", query, args...)
}

func (m *sqliteMapper) ListWithSummary(ctx context.Context, uid string, statuses []string, excludeId string, limit int64) ([]*Conversation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + columns + ` FROM conversations WHERE user_id = ? AND summary <> '' AND id <> ?
		AND status IN (` + placeholders(len(statuses)) + `) ORDER BY last_activity_at DESC, id LIMIT ?`
	args := []any{uid, excludeId}
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, limit)
	return m.list(ctx, "ListWithSummary", query, args...)
}

func (m *sqliteMapper) ListIdle(ctx context.Context, before time.Time, limit int64) ([]*Conversation, error) {
	return m.list(ctx, "ListIdle", `SELECT `+columns+` FROM conversations
		WHERE status <> ? AND last_activity_at < ? ORDER BY last_activity_at, id LIMIT ?`,
		cst.StatusArchived, sqlite.Micro(before), limit)
}

func (m *sqliteMapper) ListPendingSummary(ctx context.Context, limit int64) ([]*Conversation, error) {
	return m.list(ctx, "ListPendingSummary", `SELECT `+columns+` FROM conversations
		WHERE status = ? AND turn_count >= ? AND summarized_through < turn_count
		ORDER BY last_activity_at, id LIMIT ?`,
		cst.StatusArchived, cst.MinSummaryTurns, limit)
}

func (m *sqliteMapper) Update(ctx context.Context, id string, u *Update) error {
	expr, usageArgs := usageExpr(u.Usage)
	query := `UPDATE conversations SET status = ?, archived = ?, turn_count = ?, active_user_turns = ?,
		last_activity_at = ?, updated_at = ?, token_usage = ` + expr
	args := []any{u.Status, u.Status == cst.StatusArchived, u.TurnCount, u.ActiveUserTurns,
		sqlite.Micro(u.LastActivityAt), sqlite.Micro(u.Now)}
	args = append(args, usageArgs...)
	if u.Title != "" {
		query += `, title = ?`
		args = append(args, u.Title)
	}
	if u.Model != "" {
		query += `, model = ?`
		args = append(args, u.Model)
	}
	query += ` WHERE id = ?`
	args = append(args, id)
	if u.Expect != "" {
		query += ` AND status = ?`
		args = append(args, u.Expect)
	}
	n, err := m.exec(ctx, "Update", query, args...)
	switch {
	case err != nil:
		return err
	case n == 0 && u.Expect != "":
		return ErrStale
	case n == 0:
		return ErrNotFound
	}
	return nil
}

func (m *sqliteMapper) Archive(ctx context.Context, id string, idleBefore, now time.Time) (bool, error) {
	query := `UPDATE conversations SET status = ?, archived = 1, updated_at = ? WHERE id = ? AND status <> ?`
	args := []any{cst.StatusArchived, sqlite.Micro(now), id, cst.StatusArchived}
	if !idleBefore.IsZero() {
		query += ` AND last_activity_at < ?`
		args = append(args, sqlite.Micro(idleBefore))
	}
	n, err := m.exec(ctx, "Archive", query, args...)
	return n > 0, err
}

func (m *sqliteMapper) Reactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := m.exec(ctx, "Reactivate", `UPDATE conversations SET status = ?, archived = 0, active_user_turns = 0,
		updated_at = ? WHERE id = ? AND status = ?`, cst.StatusActive, sqlite.Micro(now), id, cst.StatusArchived)
	return n > 0, err
}

func (m *sqliteMapper) ClaimSummary(ctx context.Context, id string, now, until time.Time) (bool, error) {
	n, err := m.exec(ctx, "ClaimSummary", `UPDATE conversations SET summary_claim_until = ?
		WHERE id = ? AND summary_claim_until < ?`, sqlite.Micro(until), id, sqlite.Micro(now))
	return n > 0, err
}

func (m *sqliteMapper) ReleaseSummary(ctx context.Context, id string) error {
	_, err := m.exec(ctx, "ReleaseSummary", `UPDATE conversations SET summary_claim_until = 0 WHERE id = ?`, id)
	return err
}

func (m *sqliteMapper) UpdateSummary(ctx context.Context, id string, expectThrough int64, s *SummaryUpdate) (bool, error) {
	expr, usageArgs := usageExpr(s.Usage)
	args := []any{s.Summary, s.Through, sqlite.Micro(s.Now)}
	args = append(args, usageArgs...)
	args = append(args, id, expectThrough)
	n, err := m.exec(ctx, "UpdateSummary", `UPDATE conversations SET summary = ?, summarized_through = ?, updated_at = ?,
		token_usage = `+expr+` WHERE id = ? AND summarized_through = ?`, args...)
	return n > 0, err
}

// Invalidate SQLite不使用缓存
func (m *sqliteMapper) Invalidate(context.Context, ...string) error { return nil }

func (m *sqliteMapper) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := m.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		logs.Errorf("[mapper] [conversation] [%s] err:%s", op, errorx.ErrorWithoutStack(err))
		return 0, err
	}
	return res.RowsAffected()
}

func (m *sqliteMapper) list(ctx context.Context, op, query string, args ...any) (cs []*Conversation, err error) {
	rows, err := m.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		logs.Errorf("[mapper] [conversation] [%s] err:%s", op, errorx.ErrorWithoutStack(err))
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*Conversation, error) {
	var (
		c                                     Conversation
		claim, lastActivity, created, updated int64
		usage                                 string
	)
	if err := s.Scan(&c.ConversationId, &c.UserId, &c.Title, &c.Summary, &c.SummarizedThrough, &claim,
		&c.Model, &usage, &c.Status, &c.Archived, &c.TurnCount, &c.ActiveUserTurns,
		&lastActivity, &created, &updated); err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(usage, &c.TokenUsage); err != nil {
		return nil, err
	}
	c.SummaryClaimUntil = sqlite.FromMicro(claim)
	c.LastActivityAt = sqlite.FromMicro(lastActivity)
	c.CreateTime = sqlite.FromMicro(created)
	c.UpdateTime = sqlite.FromMicro(updated)
	return &c, nil
}

// usageExpr 生成累加token_usage的表达式, 在单条语句内完成读改写
func usageExpr(usage map[string]int64) (string, []any) {
	keys := make([]string, 0, len(usage))
	for k, v := range usage {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	expr, args := "token_usage", make([]any, 0, len(keys)*3)
	for _, k := range keys {
		path := "$." + k
		expr = "json_set(" + expr + ", ?, COALESCE(json_extract(token_usage, ?), 0) + ?)"
		args = append(args, path, path, usage[k])
	}
	return expr, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
