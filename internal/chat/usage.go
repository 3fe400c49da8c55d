package chat

import (
	"errors"
	"fmt"
	"sync"

	"chat-relay/pkg/models"
)

// ErrRateLimitExceeded is returned when a user's recent usage exceeds a
// model's configured limits.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// UsageTracker records per-user, per-model token consumption.
type UsageTracker struct {
	mu    sync.RWMutex
	usage map[string]models.ModelUsage
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]models.ModelUsage)}
}

func usageKey(userID uint64, model string) string {
	return fmt.Sprintf("%d:%s", userID, model)
}

// RecordUsage adds one request's token counts to a user's running totals.
func (t *UsageTracker) RecordUsage(userID uint64, model string, usage models.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := usageKey(userID, model)
	existing, ok := t.usage[key]
	if !ok {
		existing = models.ModelUsage{UserID: userID, Model: model}
	}
	existing.RequestsThisMinute++
	existing.TokensThisMinute += usage.Input + usage.Output
	existing.InputTokensThisMinute += usage.Input
	existing.OutputTokensThisMinute += usage.Output
	existing.TokensThisDay += usage.Input + usage.Output
	t.usage[key] = existing
}

// GetModelUsage returns the current usage for a user and model.
func (t *UsageTracker) GetModelUsage(userID uint64, model string) models.ModelUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if existing, ok := t.usage[usageKey(userID, model)]; ok {
		return existing
	}
	return models.ModelUsage{UserID: userID, Model: model}
}

// CheckRateLimit verifies usage against the limits configured for a model.
func CheckRateLimit(model models.LanguageModel, usage models.ModelUsage) error {
	if usage.RequestsThisMinute > model.MaxRequestsPerMinute {
		return fmt.Errorf("%w: maximum requests_per_minute reached", ErrRateLimitExceeded)
	}
	if usage.TokensThisMinute > model.MaxTokensPerMinute {
		return fmt.Errorf("%w: maximum tokens_per_minute reached", ErrRateLimitExceeded)
	}
	if usage.InputTokensThisMinute > model.MaxInputTokensPerMinute {
		return fmt.Errorf("%w: maximum input_tokens_per_minute reached", ErrRateLimitExceeded)
	}
	if usage.OutputTokensThisMinute > model.MaxOutputTokensPerMinute {
		return fmt.Errorf("%w: maximum output_tokens_per_minute reached", ErrRateLimitExceeded)
	}
	if usage.TokensThisDay > model.MaxTokensPerDay {
		return fmt.Errorf("%w: maximum tokens_per_day reached", ErrRateLimitExceeded)
	}
	return nil
}

// EstimateTokens approximates the token count of text. Providers do not
// report usage on every streamed chunk, so accounting works from the text
// the relay has seen; four characters per token is the usual rule of thumb.
func EstimateTokens(text string) uint64 {
	return uint64(len(text)+3) / 4
}
