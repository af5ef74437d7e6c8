package summarizer

import (
	"context"
	"time"

	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/zeromicro/go-zero/core/syncx"
	"github.com/zeromicro/go-zero/core/threading"
)

// Queue 后台摘要任务队列, 队列满时丢弃任务, 由sweeper在下一轮补偿
type Queue struct {
	summarizer *Summarizer
	runner     *threading.TaskRunner
	flight     syncx.SingleFlight
	timeout    time.Duration
}

// NewQueue 创建最多workers个并发的摘要队列
func NewQueue(s *Summarizer, workers int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	timeout := s.lifecycle.SummaryLease
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Queue{
		summarizer: s,
		runner:     threading.NewTaskRunner(workers),
		flight:     syncx.NewSingleFlight(),
		timeout:    timeout,
	}
}

// Enqueue 提交一个摘要任务, 同一对话同时只会执行一个, through含义同SummarizeThrough
func (q *Queue) Enqueue(ctx context.Context, id string, through int64) bool {
	ctx = context.WithoutCancel(ctx)
	if err := q.runner.ScheduleImmediately(func() {
		_, _ = q.flight.Do(id, func() (any, error) {
			ctx, cancel := context.WithTimeout(ctx, q.timeout)
			defer cancel()
			return q.summarizer.SummarizeThrough(ctx, id, through)
		})
	}); err != nil {
		logs.CtxWarnf(ctx, "[summarizer] queue is full, drop job of %s", id)
		return false
	}
	return true
}

// OnArchived 对话归档后立即摘要剩余的消息
func (q *Queue) OnArchived(ctx context.Context, c *conversation.Conversation) {
	q.Enqueue(ctx, c.ConversationId, 0)
}

// Wait 等待已提交的任务执行完毕
func (q *Queue) Wait() {
	q.runner.Wait()
}
