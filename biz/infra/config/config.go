package config

import (
	"os"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/service"
	"github.com/zeromicro/go-zero/core/stores/cache"
)

var config *Config

// Auth 鉴权配置, AdminToken为空时关闭管理接口
type Auth struct {
	PublicKey  string
	AdminToken string `json:",optional"`
}

// Store 存储配置, Driver为mongo时使用Mongo与Cache, 为sqlite时使用DSN
type Store struct {
	Driver string `json:",default=mongo,options=mongo|sqlite"`
	DSN    string `json:",optional"`
}

type Mongo struct {
	URL string `json:",optional"`
	DB  string `json:",optional"`
}

// Redis 对话记录缓存, Addr为空时不使用缓存
type Redis struct {
	Addr     string `json:",optional"`
	Password string `json:",optional"`
	DB       int    `json:",optional"`
}

// Lifecycle 对话生命周期与上下文相关配置
type Lifecycle struct {
	InactivityThreshold        time.Duration `json:",default=15m"`
	SweepInterval              time.Duration `json:",default=5m"`
	SweepBatch                 int64         `json:",default=100"`
	WindowTurns                int           `json:",default=20"`
	RetainTurns                int           `json:",default=6"`
	TokenBudget                int           `json:",default=6000"`
	GenerateTimeout            time.Duration `json:",default=60s"`
	SummaryLease               time.Duration `json:",default=2m"`
	SummaryWorkers             int           `json:",default=4"`
	CrossConversationSummaries int           `json:",default=1"`
	TitleLength                int           `json:",default=60"`
}

// Agent 单个智能体的模型配置
type Agent struct {
	Provider     string  `json:",default=openai,options=openai|ark"`
	BaseURL      string  `json:",optional"`
	Region       string  `json:",optional"`
	APIKey       string  `json:",optional"`
	Model        string
	SystemPrompt string  `json:",optional"`
	Temperature  float32 `json:",optional"`
	MaxTokens    int     `json:",optional"`
}

type Sensitive struct {
	Words []string `json:",optional"`
}

type Metrics struct {
	ListenOn string `json:",default=:9091"`
	Path     string `json:",default=/metrics"`
}

type Config struct {
	service.ServiceConf
	ListenOn  string
	Auth      Auth            `json:",optional"`
	Store     Store           `json:",optional"`
	Mongo     Mongo           `json:",optional"`
	Cache     cache.CacheConf `json:",optional"`
	Redis     Redis           `json:",optional"`
	Lifecycle Lifecycle       `json:",optional"`
	Agents    map[string]Agent
	Sensitive Sensitive `json:",optional"`
	Metrics   Metrics   `json:",optional"`
}

func NewConfig() (*Config, error) {
	c := new(Config)
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "etc/config.yaml"
	}
	err := conf.Load(path, c)
	if err != nil {
		return nil, err
	}
	err = c.SetUp()
	if err != nil {
		return nil, err
	}
	config = c
	return config, nil
}

func GetConfig() *Config {
	return config
}

// DefaultLifecycle 返回默认的生命周期配置, 与json tag中的默认值一致
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		InactivityThreshold:        15 * time.Minute,
		SweepInterval:              5 * time.Minute,
		SweepBatch:                 100,
		WindowTurns:                20,
		RetainTurns:                6,
		TokenBudget:                6000,
		GenerateTimeout:            60 * time.Second,
		SummaryLease:               2 * time.Minute,
		SummaryWorkers:             4,
		CrossConversationSummaries: 1,
		TitleLength:                60,
	}
}
