package history

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cache"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/turn"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
)

/* 对话历史记录 */

const (
	cachePrefix = "mindy:turn:"
	ttl         = time.Hour * 6
)

// HistoryManager 历史记录管理, 所有的历史记录都按照index从旧到新排序
// 消息不可修改, 缓存只会缺失不会过期失真, 条数与对话的TurnCount一致时才视为完整
type HistoryManager struct {
	cache  cache.Cmdable
	mapper turn.Mapper
}

// New 创建一个新的历史记录管理器, cache为nil时直接读取存储
func New(cache cache.Cmdable, mapper turn.Mapper) *HistoryManager {
	return &HistoryManager{cache: cache, mapper: mapper}
}

// Retrieve 获取对话的消息, count为对话当前的消息数
// 首先从缓存中获取, 缓存不完整时从数据库中获取全部消息, 后重新构建缓存
func (h *HistoryManager) Retrieve(ctx context.Context, id string, count int64, opt *turn.ListOption) (turns []*turn.Turn, err error) {
	if h.cache == nil {
		return h.mapper.List(ctx, id, opt)
	}
	// retrieve cache
	if turns, err = h.RetrieveFromCache(ctx, id, count); err == nil {
		return opt.Filter(turns), nil
	}
	// retrieve storage
	if turns, err = h.mapper.List(ctx, id, nil); err != nil {
		return nil, err
	}
	// rebuild cache
	if len(turns) > 0 {
		if err = h.Cache(ctx, id, turns); err != nil {
			logs.Errorf("[history] cache turns err: %s", errorx.ErrorWithoutStack(err))
		}
	}
	return opt.Filter(turns), nil
}

// RetrieveFromCache 从缓存中获取对话的全部消息
// 缓存中的条数与count不一致时返回cache.Nil
func (h *HistoryManager) RetrieveFromCache(ctx context.Context, id string, count int64) ([]*turn.Turn, error) {
	result, err := h.cache.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, err
	} else if len(result) == 0 || int64(len(result)) != count {
		return nil, cache.Nil
	}

	turns := make([]*turn.Turn, 0, len(result))
	for _, data := range result {
		var t turn.Turn
		if err = sonic.UnmarshalString(data, &t); err != nil {
			logs.Errorf("[history] unmarshal turn err:%s", errorx.ErrorWithoutStack(err))
			return nil, err
		}
		turns = append(turns, &t)
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].Index < turns[j].Index })
	return turns, nil
}

// Cache 将消息合并进缓存, 已存在的index会被相同内容覆盖
func (h *HistoryManager) Cache(ctx context.Context, id string, turns []*turn.Turn) (err error) {
	if h.cache == nil || len(turns) == 0 {
		return nil
	}
	fields := make(map[string]string, len(turns))
	for _, t := range turns {
		var data string
		if data, err = sonic.MarshalString(t); err != nil {
			return err
		}
		fields[strconv.FormatInt(t.Index, 10)] = data
	}
	p, k := h.cache.Pipeline(), key(id)
	p.HSet(ctx, k, fields)
	p.Expire(ctx, k, ttl)
	_, err = p.Exec(ctx)
	return
}

func key(id string) string {
	return cachePrefix + id
}
