// Package models adapts chat-completion providers behind a single Client
// used by the agent engine. All four supported providers speak the OpenAI
// wire protocol, so one eino chat model covers them with per-provider base
// URLs and API keys.
package models

import (
	"context"
	"encoding/json"
)

// Client is the LLM surface the agent engine sees: one prompt in, raw text
// plus token usage out. A failed call never surfaces as a Go error; it
// returns the fallback FAIL action with zero usage so the caller's economy
// stays consistent.
type Client interface {
	Call(ctx context.Context, prompt string) (text string, inTokens, outTokens int)
}

// FallbackResponse builds the action JSON returned when a provider call
// fails: the agent sees a parseable FAIL decision instead of an exception.
func FallbackResponse(reason string) string {
	data, _ := json.Marshal(map[string]string{
		"reasoning": reason,
		"action":    "FAIL",
	})
	return string(data)
}
