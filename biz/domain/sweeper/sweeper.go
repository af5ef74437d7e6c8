package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/xh-polaris/mindy-core-api/biz/domain/registry"
	"github.com/xh-polaris/mindy-core-api/biz/domain/summarizer"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cst"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper/conversation"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"github.com/xh-polaris/mindy-core-api/pkg/safego"
	"github.com/xh-polaris/mindy-core-api/types/errno"
)

// Report 一轮清理的结果
type Report struct {
	Archived   int // 本轮归档的对话数
	Summarized int // 本轮完成摘要的对话数
	Failed     int // 摘要失败的对话数, 下一轮重试
}

// Sweeper 周期性归档不活跃的对话, 并补齐已归档对话的摘要
type Sweeper struct {
	registry      *registry.Registry
	conversations conversation.Mapper
	summarizer    *summarizer.Summarizer
	lifecycle     config.Lifecycle

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func New(r *registry.Registry, conversations conversation.Mapper, s *summarizer.Summarizer, lifecycle config.Lifecycle) *Sweeper {
	return &Sweeper{registry: r, conversations: conversations, summarizer: s, lifecycle: lifecycle}
}

// RunOnce 执行一轮清理, 重复执行的结果与执行一次相同
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	archived, err := s.registry.ArchiveIdle(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Archived: archived}

	batch := s.lifecycle.SweepBatch
	if batch <= 0 {
		batch = 100
	}
	pending, err := s.conversations.ListPendingSummary(ctx, batch)
	if err != nil {
		return report, errorx.WrapByCode(err, errno.ConversationSweepErrCode)
	}
	for _, c := range pending {
		r, err := s.summarizer.MaybeSummarize(ctx, c.ConversationId)
		switch {
		case err != nil:
			report.Failed++
		case r.Updated:
			report.Summarized++
		}
	}
	if report.Archived > 0 || report.Summarized > 0 || report.Failed > 0 {
		logs.CtxInfof(ctx, "[sweeper] archived %d, summarized %d, failed %d", report.Archived, report.Summarized, report.Failed)
	}
	return report, nil
}

// RunUser 检查用户的对话, 归档不活跃的对话并摘要其中尚未摘要的部分
func (s *Sweeper) RunUser(ctx context.Context, uid string) (*Report, error) {
	open, err := s.registry.AgeUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	for _, c := range open {
		if c.IsArchived() {
			report.Archived++
		}
	}
	archived, err := s.conversations.ListByStatus(ctx, uid, cst.StatusArchived)
	if err != nil {
		return report, errorx.WrapByCode(err, errno.ConversationSummarizeErrCode)
	}
	for _, c := range archived {
		if c.TurnCount < cst.MinSummaryTurns || c.LiveTurns() == 0 {
			continue
		}
		r, err := s.summarizer.MaybeSummarize(ctx, c.ConversationId)
		switch {
		case err != nil:
			report.Failed++
		case r.Updated:
			report.Summarized++
		}
	}
	if report.Archived > 0 || report.Summarized > 0 || report.Failed > 0 {
		logs.CtxInfof(ctx, "[sweeper] user %s archived %d, summarized %d, failed %d", uid, report.Archived, report.Summarized, report.Failed)
	}
	return report, nil
}

// Start 每隔SweepInterval执行一次RunOnce, 重复调用无影响
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	interval := s.lifecycle.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.stop, s.done = stop, done

	ctx := context.Background()
	safego.Go(ctx, func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					logs.CtxErrorf(ctx, "[sweeper] run err: %s", errorx.ErrorWithoutStack(err))
				}
			}
		}
	})
}

// Stop 停止周期执行并等待正在执行的一轮结束
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
