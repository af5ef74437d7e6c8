package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/zeromicro/go-zero/core/stores/monc"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ Mapper = (*mongoMapper)(nil)

const (
	collection     = "conversation"
	cacheKeyPrefix = "cache:conversation:"
)

// Mapper 对话存储, 所有写操作都以单个对话为粒度
type Mapper interface {
	Insert(ctx context.Context, c *Conversation) error
	FindOne(ctx context.Context, id string) (*Conversation, error)
	// ListByStatus 按创建时间倒序列出用户指定状态的对话, statuses为空时列出全部
	ListByStatus(ctx context.Context, uid string, statuses ...string) ([]*Conversation, error)
	// ListWithSummary 按最近活跃倒序列出有摘要的对话, 排除excludeId
	ListWithSummary(ctx context.Context, uid string, statuses []string, excludeId string, limit int64) ([]*Conversation, error)
	// ListIdle 列出before之前就不再活跃的未归档对话
	ListIdle(ctx context.Context, before time.Time, limit int64) ([]*Conversation, error)
	// ListPendingSummary 列出已归档但仍有未摘要消息的对话, 消息数不足以摘要的对话不会列出
	ListPendingSummary(ctx context.Context, limit int64) ([]*Conversation, error)
	// Update 写回一轮对话后的状态, u.Expect不为空且状态已改变时返回ErrStale
	Update(ctx context.Context, id string, u *Update) error
	// Archive 归档对话, idleBefore非零时要求最近活跃时间早于idleBefore, 返回是否发生了状态变化
	Archive(ctx context.Context, id string, idleBefore, now time.Time) (bool, error)
	// Reactivate 将已归档的对话重新激活, 返回是否发生了状态变化
	Reactivate(ctx context.Context, id string, now time.Time) (bool, error)
	// ClaimSummary 获取摘要租约, 租约未过期时返回false
	ClaimSummary(ctx context.Context, id string, now, until time.Time) (bool, error)
	ReleaseSummary(ctx context.Context, id string) error
	// UpdateSummary 仅当summarized_through仍为expectThrough时写入摘要
	UpdateSummary(ctx context.Context, id string, expectThrough int64, s *SummaryUpdate) (bool, error)
	// Invalidate 事务提交后删除对话的缓存
	Invalidate(ctx context.Context, ids ...string) error
}

type mongoMapper struct {
	conn *monc.Model
}

func NewConversationMongoMapper(config *config.Config) Mapper {
	conn := monc.MustNewModel(config.Mongo.URL, config.Mongo.DB, collection, config.Cache)
	return &mongoMapper{conn: conn}
}

// Insert 创建一个新的对话
func (m *mongoMapper) Insert(ctx context.Context, c *Conversation) (err error) {
	if mongo.SessionFromContext(ctx) != nil {
		_, err = m.conn.InsertOneNoCache(ctx, c)
	} else {
		_, err = m.conn.InsertOne(ctx, cacheKeyPrefix+c.ConversationId, c)
	}
	if err != nil {
		logs.Errorf("[mapper] [conversation] [Insert] err:%s", errorx.ErrorWithoutStack(err))
	}
	return err
}

// Invalidate 删除对话的缓存
func (m *mongoMapper) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cacheKeyPrefix+id)
	}
	if err := m.conn.DelCache(ctx, keys...); err != nil {
		logs.Errorf("[mapper] [conversation] [Invalidate] err:%s", errorx.ErrorWithoutStack(err))
		return err
	}
	return nil
}

func (m *mongoMapper) FindOne(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var err error
	if mongo.SessionFromContext(ctx) != nil { // 事务中读取未提交的数据, 不能写入缓存
		err = m.conn.FindOneNoCache(ctx, &c, bson.M{cst.Id: id})
	} else {
		err = m.conn.FindOne(ctx, cacheKeyPrefix+id, &c, bson.M{cst.Id: id})
	}
	switch {
	case err == nil:
		return &c, nil
	case errors.Is(err, monc.ErrNotFound), errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrNotFound
	default:
		logs.Errorf("[mapper] [conversation] [FindOne] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
}

func (m *mongoMapper) ListByStatus(ctx context.Context, uid string, statuses ...string) (cs []*Conversation, err error) {
	filter := bson.M{cst.UserId: uid}
	if len(statuses) > 0 {
		filter[cst.Status] = bson.M{cst.In: statuses}
	}
	opts := options.Find().SetSort(bson.D{{Key: cst.CreateTime, Value: -1}})
	if err = m.conn.Find(ctx, &cs, filter, opts); err != nil {
		logs.Errorf("[mapper] [conversation] [ListByStatus] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
	return cs, nil
}

func (m *mongoMapper) ListWithSummary(ctx context.Context, uid string, statuses []string, excludeId string, limit int64) (cs []*Conversation, err error) {
	// summary为空时字段缺失, 需要同时要求字段存在
	filter := bson.M{
		cst.UserId:  uid,
		cst.Summary: bson.M{cst.Exists: true, cst.NE: ""},
		cst.Status:  bson.M{cst.In: statuses},
	}
	if excludeId != "" {
		filter[cst.Id] = bson.M{cst.NE: excludeId}
	}
	opts := options.Find().SetSort(bson.D{{Key: cst.LastActivityAt, Value: -1}}).SetLimit(limit)
	if err = m.conn.Find(ctx, &cs, filter, opts); err != nil {
		logs.Errorf("[mapper] [conversation] [ListWithSummary] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
	return cs, nil
}

func (m *mongoMapper) ListIdle(ctx context.Context, before time.Time, limit int64) (cs []*Conversation, err error) {
	filter := bson.M{
		cst.Status:         bson.M{cst.In: []string{cst.StatusActive, cst.StatusInProgress}},
		cst.LastActivityAt: bson.M{cst.LT: before},
	}
	opts := options.Find().SetSort(bson.D{{Key: cst.LastActivityAt, Value: 1}}).SetLimit(limit)
	if err = m.conn.Find(ctx, &cs, filter, opts); err != nil {
		logs.Errorf("[mapper] [conversation] [ListIdle] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
	return cs, nil
}

func (m *mongoMapper) ListPendingSummary(ctx context.Context, limit int64) (cs []*Conversation, err error) {
	filter := bson.M{
		cst.Status:    cst.StatusArchived,
		cst.TurnCount: bson.M{cst.GTE: cst.MinSummaryTurns},
		cst.Expr:      bson.M{cst.LT: bson.A{"$" + cst.SummarizedThrough, "$" + cst.TurnCount}},
	}
	opts := options.Find().SetSort(bson.D{{Key: cst.LastActivityAt, Value: 1}}).SetLimit(limit)
	if err = m.conn.Find(ctx, &cs, filter, opts); err != nil {
		logs.Errorf("[mapper] [conversation] [ListPendingSummary] err:%s", errorx.ErrorWithoutStack(err))
		return nil, err
	}
	return cs, nil
}

// Update 写回一轮对话后的状态, 用量做累加
func (m *mongoMapper) Update(ctx context.Context, id string, u *Update) error {
	set := bson.M{
		cst.Status:          u.Status,
		cst.Archived:        u.Status == cst.StatusArchived,
		cst.TurnCount:       u.TurnCount,
		cst.ActiveUserTurns: u.ActiveUserTurns,
		cst.LastActivityAt:  u.LastActivityAt,
		cst.UpdateTime:      u.Now,
	}
	if u.Title != "" {
		set[cst.Title] = u.Title
	}
	if u.Model != "" {
		set[cst.Model] = u.Model
	}
	update := bson.M{cst.Set: set}
	if inc := usageInc(u.Usage); len(inc) > 0 {
		update[cst.Inc] = inc
	}
	filter := bson.M{cst.Id: id}
	if u.Expect != "" {
		filter[cst.Status] = u.Expect
	}
	res, err := m.updateOne(ctx, id, filter, update)
	switch {
	case err != nil:
		logs.Errorf("[mapper] [conversation] [Update] err:%s", errorx.ErrorWithoutStack(err))
		return err
	case res.MatchedCount == 0 && u.Expect != "":
		return ErrStale
	case res.MatchedCount == 0:
		return ErrNotFound
	}
	return nil
}

func (m *mongoMapper) Archive(ctx context.Context, id string, idleBefore, now time.Time) (bool, error) {
	filter := bson.M{cst.Id: id, cst.Status: bson.M{cst.NE: cst.StatusArchived}}
	if !idleBefore.IsZero() {
		filter[cst.LastActivityAt] = bson.M{cst.LT: idleBefore}
	}
	res, err := m.updateOne(ctx, id, filter,
		bson.M{cst.Set: bson.M{cst.Status: cst.StatusArchived, cst.Archived: true, cst.UpdateTime: now}})
	if err != nil {
		logs.Errorf("[mapper] [conversation] [Archive] err:%s", errorx.ErrorWithoutStack(err))
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (m *mongoMapper) Reactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	filter := bson.M{cst.Id: id, cst.Status: cst.StatusArchived}
	res, err := m.updateOne(ctx, id, filter, bson.M{cst.Set: bson.M{
		cst.Status: cst.StatusActive, cst.Archived: false, cst.ActiveUserTurns: 0, cst.UpdateTime: now,
	}})
	if err != nil {
		logs.Errorf("[mapper] [conversation] [Reactivate] err:%s", errorx.ErrorWithoutStack(err))
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (m *mongoMapper) ClaimSummary(ctx context.Context, id string, now, until time.Time) (bool, error) {
	filter := bson.M{cst.Id: id, cst.Or: bson.A{
		bson.M{cst.SummaryClaimUntil: bson.M{cst.Exists: false}},
		bson.M{cst.SummaryClaimUntil: bson.M{cst.LT: now}},
	}}
	res, err := m.updateOne(ctx, id, filter, bson.M{cst.Set: bson.M{cst.SummaryClaimUntil: until}})
	if err != nil {
		logs.Errorf("[mapper] [conversation] [ClaimSummary] err:%s", errorx.ErrorWithoutStack(err))
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (m *mongoMapper) ReleaseSummary(ctx context.Context, id string) error {
	_, err := m.updateOne(ctx, id, bson.M{cst.Id: id}, bson.M{cst.Unset: bson.M{cst.SummaryClaimUntil: ""}})
	if err != nil {
		logs.Errorf("[mapper] [conversation] [ReleaseSummary] err:%s", errorx.ErrorWithoutStack(err))
	}
	return err
}

func (m *mongoMapper) UpdateSummary(ctx context.Context, id string, expectThrough int64, s *SummaryUpdate) (bool, error) {
	filter := bson.M{cst.Id: id, cst.SummarizedThrough: expectThrough}
	update := bson.M{cst.Set: bson.M{cst.Summary: s.Summary, cst.SummarizedThrough: s.Through, cst.UpdateTime: s.Now}}
	if inc := usageInc(s.Usage); len(inc) > 0 {
		update[cst.Inc] = inc
	}
	res, err := m.updateOne(ctx, id, filter, update)
	if err != nil {
		logs.Errorf("[mapper] [conversation] [UpdateSummary] err:%s", errorx.ErrorWithoutStack(err))
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// updateOne 事务中的写入在提交前对其它会话不可见, 不能删除缓存, 由调用方在提交后调用Invalidate
func (m *mongoMapper) updateOne(ctx context.Context, id string, filter, update any) (*mongo.UpdateResult, error) {
	if mongo.SessionFromContext(ctx) != nil {
		return m.conn.UpdateOneNoCache(ctx, filter, update)
	}
	return m.conn.UpdateOne(ctx, cacheKeyPrefix+id, filter, update)
}

func usageInc(usage map[string]int64) bson.M {
	inc := bson.M{}
	for k, v := range usage {
		if v > 0 {
			inc[cst.TokenUsage+"."+k] = v
		}
	}
	return inc
}
