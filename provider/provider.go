package provider

import (
	"github.com/google/wire"
	"github.com/xh-polaris/mindy-core-api/biz/application/service"
	"github.com/xh-polaris/mindy-core-api/biz/domain/agent"
	"github.com/xh-polaris/mindy-core-api/biz/domain/assembler"
	"github.com/xh-polaris/mindy-core-api/biz/domain/engine"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory"
	"github.com/xh-polaris/mindy-core-api/biz/domain/memory/history"
	"github.com/xh-polaris/mindy-core-api/biz/domain/registry"
	"github.com/xh-polaris/mindy-core-api/biz/domain/summarizer"
	"github.com/xh-polaris/mindy-core-api/biz/domain/sweeper"
	"github.com/xh-polaris/mindy-core-api/biz/infra/cache"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/biz/infra/mapper"
)

var provider *Provider

func Init() {
	var err error
	provider, err = NewProvider()
	if err != nil {
		panic(err)
	}
}

// Provider 提供controller依赖的对象
type Provider struct {
	Config              *config.Config
	ConversationService service.IConversationService
	Sweeper             *sweeper.Sweeper
	Queue               *summarizer.Queue
}

func Get() *Provider {
	return provider
}

var ApplicationSet = wire.NewSet(
	service.ConversationServiceSet,
)

var DomainSet = wire.NewSet(
	NewHistory,
	NewMemory,
	NewSummarizer,
	NewQueue,
	NewRegistry,
	NewAssembler,
	NewSweeper,
	NewEngine,
	agent.NewFactory,
	wire.Bind(new(agent.Generator), new(*agent.Factory)),
)

var InfraSet = wire.NewSet(
	config.NewConfig,
	mapper.New,
	cache.NewRedis,
)

var AllProvider = wire.NewSet(
	ApplicationSet,
	DomainSet,
	InfraSet,
)

func NewHistory(c cache.Cmdable, m *mapper.Mappers) *history.HistoryManager {
	return history.New(c, m.Turn)
}

func NewMemory(his *history.HistoryManager, m *mapper.Mappers) *memory.Store {
	return memory.New(his, m, nil)
}

func NewSummarizer(c *config.Config, m *mapper.Mappers, g agent.Generator, store *memory.Store) *summarizer.Summarizer {
	return summarizer.New(m.Conversation, store, g, c.Lifecycle, nil)
}

func NewQueue(c *config.Config, s *summarizer.Summarizer) *summarizer.Queue {
	return summarizer.NewQueue(s, c.Lifecycle.SummaryWorkers)
}

// NewRegistry 对话归档后交给摘要队列
func NewRegistry(c *config.Config, m *mapper.Mappers, q *summarizer.Queue) *registry.Registry {
	return registry.New(m, c.Lifecycle, q, nil)
}

func NewAssembler(c *config.Config, m *mapper.Mappers, store *memory.Store) *assembler.Assembler {
	return assembler.New(store, m.Conversation, c.Lifecycle)
}

func NewSweeper(c *config.Config, r *registry.Registry, m *mapper.Mappers, s *summarizer.Summarizer) *sweeper.Sweeper {
	return sweeper.New(r, m.Conversation, s, c.Lifecycle)
}

func NewEngine(c *config.Config, r *registry.Registry, store *memory.Store, a *assembler.Assembler,
	g agent.Generator, q *summarizer.Queue, sw *sweeper.Sweeper, m *mapper.Mappers) *engine.Engine {
	return engine.New(&engine.Options{
		Registry:  r,
		Memory:    store,
		Assembler: a,
		Generator: g,
		Scheduler: q,
		Sweeper:   sw,
		Mappers:   m,
		Lifecycle: c.Lifecycle,
	})
}
