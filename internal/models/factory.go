package models

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/aos-sim/aos/internal/config"
)

type providerInfo struct {
	baseURL string
	envKey  string
}

// All supported providers are OpenAI-compatible; only the base URL and the
// credential env var differ.
var providers = map[string]providerInfo{
	"openai":   {baseURL: "", envKey: "OPENAI_API_KEY"},
	"deepseek": {baseURL: "https://api.deepseek.com/v1", envKey: "DEEPSEEK_API_KEY"},
	"kimi":     {baseURL: "https://api.moonshot.cn/v1", envKey: "KIMI_API_KEY"},
	"groq":     {baseURL: "https://api.groq.com/openai/v1", envKey: "GROQ_API_KEY"},
}

// ProviderEnvKeys maps provider names to the env var holding their API key,
// for the `check` command.
func ProviderEnvKeys() map[string]string {
	out := make(map[string]string, len(providers))
	for name, info := range providers {
		out[name] = info.envKey
	}
	return out
}

// NewClient creates a Client for the configured provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	info, ok := providers[strings.ToLower(cfg.Provider)]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	apiKey := os.Getenv(info.envKey)
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: %s is not set", cfg.Provider, info.envKey)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   cfg.Model,
		Timeout: timeout,
	}
	if info.baseURL != "" {
		modelConfig.BaseURL = info.baseURL
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		modelConfig.Temperature = &temp
	}

	chatModel, err := einoopenai.NewChatModel(ctx, modelConfig)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	return &einoClient{
		chatModel: chatModel,
		provider:  cfg.Provider,
		modelName: cfg.Model,
		wall:      timeout + 10*time.Second,
	}, nil
}
