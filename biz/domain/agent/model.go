package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Builder 根据配置创建聊天模型
type Builder func(ctx context.Context, c *config.Agent, client *http.Client) (model.BaseChatModel, error)

var (
	mu       sync.RWMutex
	builders = map[string]Builder{
		ProviderOpenAI: NewOpenAIChatModel,
		ProviderARK:    NewARKChatModel,
	}
)

const (
	ProviderOpenAI = "openai"
	ProviderARK    = "ark"

	ARKBeijing = "https://ark.cn-beijing.volces.com/api/v3"
)

// RegisterBuilder 注册模型提供方, 同名时覆盖
func RegisterBuilder(provider string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builders[provider] = b
}

func getBuilder(provider string) (Builder, error) {
	if provider == "" {
		provider = ProviderOpenAI
	}
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q", provider)
	}
	return b, nil
}

// NewHTTPClient 模型调用使用的客户端, 出站请求带上trace
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

func NewOpenAIChatModel(ctx context.Context, c *config.Agent, client *http.Client) (model.BaseChatModel, error) {
	cfg := &openai.ChatModelConfig{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		HTTPClient: client,
	}
	if c.MaxTokens > 0 {
		cfg.MaxTokens = &c.MaxTokens
	}
	if c.Temperature > 0 {
		cfg.Temperature = &c.Temperature
	}
	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cm, nil
}

func NewARKChatModel(ctx context.Context, c *config.Agent, client *http.Client) (model.BaseChatModel, error) {
	baseURL, region := c.BaseURL, c.Region
	if baseURL == "" {
		baseURL = ARKBeijing
	}
	if region == "" {
		region = "cn-beijing"
	}
	cfg := &ark.ChatModelConfig{
		BaseURL:    baseURL,
		Region:     region,
		APIKey:     c.APIKey,
		Model:      c.Model,
		HTTPClient: client,
	}
	if c.MaxTokens > 0 {
		cfg.MaxTokens = &c.MaxTokens
	}
	if c.Temperature > 0 {
		cfg.Temperature = &c.Temperature
	}
	cm, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cm, nil
}
