package models

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// einoClient implements Client over an eino chat model. One instance serves
// one simulation; it is safe for concurrent use by many agents.
type einoClient struct {
	chatModel model.BaseChatModel
	provider  string
	modelName string
	// wall bounds the whole call, slightly above the provider-side timeout
	// so the SDK's own deadline fires first under normal conditions.
	wall time.Duration
}

func (c *einoClient) Call(ctx context.Context, prompt string) (string, int, int) {
	ctx, cancel := context.WithTimeout(ctx, c.wall)
	defer cancel()

	result, err := c.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		err = HandleError(err)
		slog.Error("llm call failed",
			"provider", c.provider,
			"model", c.modelName,
			"error", err)
		return FallbackResponse("LLM call failed: " + err.Error()), 0, 0
	}

	inTokens, outTokens := 0, 0
	if result.ResponseMeta != nil && result.ResponseMeta.Usage != nil {
		inTokens = result.ResponseMeta.Usage.PromptTokens
		outTokens = result.ResponseMeta.Usage.CompletionTokens
	}
	return result.Content, inTokens, outTokens
}
