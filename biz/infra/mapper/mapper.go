package mapper

import (
	"context"

	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/sqlite"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/zeromicro/go-zero/core/stores/mon"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Transactor 在一个存储事务中执行fn, fn中的mapper调用必须使用传入的ctx
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Mappers 同一存储驱动下的全部mapper
type Mappers struct {
	Conversation conversation.Mapper
	Turn         turn.Mapper
	Transactor   Transactor
}

// New 根据配置的驱动创建mapper
func New(c *config.Config) (*Mappers, error) {
	switch c.Store.Driver {
	case cst.DriverSQLite:
		db, err := sqlite.Open(c.Store.DSN)
		if err != nil {
			return nil, err
		}
		return NewSQLite(db), nil
	default:
		return &Mappers{
			Conversation: conversation.NewConversationMongoMapper(c),
			Turn:         turn.NewTurnMongoMapper(c),
			Transactor:   &mongoTransactor{conn: mon.MustNewModel(c.Mongo.URL, c.Mongo.DB, "turn")},
		}, nil
	}
}

// NewSQLite 基于已打开的SQLite数据库创建mapper
func NewSQLite(db *sqlite.DB) *Mappers {
	return &Mappers{
		Conversation: conversation.NewConversationSQLiteMapper(db),
		Turn:         turn.NewTurnSQLiteMapper(db),
		Transactor:   db,
	}
}

type mongoTransactor struct {
	conn *mon.Model
}

func (t *mongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// 已处于事务中时复用外层事务
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	// 开启会话
	session, err := t.conn.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	// 在会话中执行一个事务
	if _, err = session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		return nil, fn(sessCtx)
	}); err != nil {
		logs.Errorf("[mapper] [transaction] err:%s", errorx.ErrorWithoutStack(err))
	}
	return err
}
