package models

import (
	"fmt"
	"strings"
)

// HandleError classifies raw provider/SDK errors so the failure reason that
// reaches the agent's fallback action is readable.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "401", "403", "unauthorized", "invalid api key", "api key", "forbidden"):
		return fmt.Errorf("authentication failed: %w", err)
	case containsAny(errStr, "429", "rate limit", "quota", "too many requests"):
		return fmt.Errorf("rate limited: %w", err)
	case containsAny(errStr, "context length", "too many tokens", "max tokens", "token limit"):
		return fmt.Errorf("context too long: %w", err)
	case containsAny(errStr, "model not found", "404", "not found"):
		return fmt.Errorf("model not found: %w", err)
	case containsAny(errStr, "connection", "eof", "timeout", "dial", "refused"):
		return fmt.Errorf("connection error: %w", err)
	}

	return err
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
