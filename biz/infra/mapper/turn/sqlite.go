package turn

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/sqlite"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
)

var _ Mapper = (*sqliteMapper)(nil)

type sqliteMapper struct {
	db *sqlite.DB
}

func NewTurnSQLiteMapper(db *sqlite.DB) Mapper {
	return &sqliteMapper{db: db}
}

func (m *sqliteMapper) InsertMany(ctx context.Context, turns []*Turn) error {
	conn := m.db.Conn(ctx)
	for _, t := range turns {
		content, err := sonic.MarshalString(t.Content)
		if err != nil {
			return err
		}
		if _, err = conn.ExecContext(ctx, `INSERT INTO turns (id, conversation_id, user_id, idx, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.TurnId, t.ConversationId, t.UserId, t.Index, t.Role, content, sqlite.Micro(t.CreateTime)); err != nil {
			logs.Errorf("[mapper] [turn] [InsertMany] err:%s", errorx.ErrorWithoutStack(err))
			return err
		}
	}
	return nil
}

func (m *sqliteMapper) List(ctx context.Context, conversationId string, opt *ListOption) (turns []*Turn, err error) {
	if opt == nil {
		opt = &ListOption{}
	}
	query := `SELECT id, conversation_id, user_id, idx, role, content, created_at FROM turns
		WHERE conversation_id = ? AND idx >= ?`
	args := []any{conversationId, opt.From}
	if opt.To > 0 {
		query += ` AND idx < ?`
		args = append(args, opt.To)
	}
	if !opt.Before.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, sqlite.Micro(opt.Before))
	}
	if opt.Newest {
		query += ` ORDER BY idx DESC`
	} else {
		query += ` ORDER BY idx`
	}
	if opt.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opt.Limit)
	}

	rows, err := m.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		logs.Errorf("[mapper] [turn] [List] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			t       Turn
			content string
			created int64
		)
		if err = rows.Scan(&t.TurnId, &t.ConversationId, &t.UserId, &t.Index, &t.Role, &content, &created); err != nil {
			return nil, err
		}
		if err = sonic.UnmarshalString(content, &t.Content); err != nil {
			return nil, err
		}
		t.CreateTime = sqlite.FromMicro(created)
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

func (m *sqliteMapper) Count(ctx context.Context, conversationId string) (n int64, err error) {
	err = m.db.Conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE conversation_id = ?`, conversationId).Scan(&n)
	if err != nil {
		logs.Errorf("[mapper] [turn] [Count] err:%s", errorx.ErrorWithoutStack(err))
	}
	return n, err
}
