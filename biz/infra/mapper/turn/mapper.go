package turn

import (
	"context"

	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/zeromicro/go-zero/core/stores/monc"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ Mapper = (*mongoMapper)(nil)

const collection = "turn"

// Mapper 消息存储, 只追加不修改
type Mapper interface {
	// InsertMany 按顺序插入一组消息, 调用方负责事务
	InsertMany(ctx context.Context, turns []*Turn) error
	// List 列出对话的消息, 默认按index升序
	List(ctx context.Context, conversationId string, opt *ListOption) ([]*Turn, error)
	Count(ctx context.Context, conversationId string) (int64, error)
}

type mongoMapper struct {
	conn *monc.Model
}

func NewTurnMongoMapper(config *config.Config) Mapper {
	conn := monc.MustNewModel(config.Mongo.URL, config.Mongo.DB, collection, config.Cache)
	return &mongoMapper{conn: conn}
}

func (m *mongoMapper) InsertMany(ctx context.Context, turns []*Turn) error {
	if len(turns) == 0 {
		return nil
	}
	docs := make([]any, 0, len(turns))
	for _, t := range turns {
		docs = append(docs, t)
	}
	if _, err := m.conn.InsertMany(ctx, docs); err != nil {
		logs.Errorf("[mapper] [turn] [InsertMany] err:%s", errorx.ErrorWithoutStack(err))
		return err
	}
	return nil
}

func (m *mongoMapper) List(ctx context.Context, conversationId string, opt *ListOption) (turns []*Turn, err error) {
	if opt == nil {
		opt = &ListOption{}
	}
	filter := bson.M{cst.ConversationId: conversationId}
	index := bson.M{}
	if opt.From > 0 {
		index[cst.GTE] = opt.From
	}
	if opt.To > 0 {
		index[cst.LT] = opt.To
	}
	if len(index) > 0 {
		filter[cst.Index] = index
	}
	if !opt.Before.IsZero() {
		filter[cst.CreateTime] = bson.M{cst.LT: opt.Before}
	}
	order := 1
	if opt.Newest {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: cst.Index, Value: order}})
	if opt.Limit > 0 {
		opts.SetLimit(opt.Limit)
	}
	if err = m.conn.Find(ctx, &turns, filter, opts); err != nil {
		logs.Errorf("[mapper] [turn] [List] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
	return turns, nil
}

func (m *mongoMapper) Count(ctx context.Context, conversationId string) (int64, error) {
	n, err := m.conn.CountDocuments(ctx, bson.M{cst.ConversationId: conversationId})
	if err != nil {
		logs.Errorf("[mapper] [turn] [Count] err:%s", errorx.ErrorWithoutStack(err))
	}
	return n, err
}
