// Package models defines the shared data types used across the chat relay:
// conversation messages, model descriptors, usage counters, and API tokens.
package models

import "time"

// Message roles as sent to and received from language model providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LanguageModelProvider identifies a supported model provider.
type LanguageModelProvider string

const (
	// ProviderOpenAI is the official OpenAI API.
	ProviderOpenAI LanguageModelProvider = "openai"
	// ProviderGoogle is the Google Gemini API.
	ProviderGoogle LanguageModelProvider = "google"
	// ProviderOpenAICompatible is any endpoint speaking the OpenAI
	// chat-completions SSE protocol.
	ProviderOpenAICompatible LanguageModelProvider = "openai-compatible"
)

// LanguageModel describes a model offered by the relay along with its
// per-user rate limits.
type LanguageModel struct {
	ID                       string                `json:"id"`
	Name                     string                `json:"name"`
	Provider                 LanguageModelProvider `json:"provider"`
	MaxRequestsPerMinute     uint64                `json:"max_requests_per_minute"`
	MaxTokensPerMinute       uint64                `json:"max_tokens_per_minute"`
	MaxInputTokensPerMinute  uint64                `json:"max_input_tokens_per_minute"`
	MaxOutputTokensPerMinute uint64                `json:"max_output_tokens_per_minute"`
	MaxTokensPerDay          uint64                `json:"max_tokens_per_day"`
	Enabled                  bool                  `json:"enabled"`
}

// TokenUsage counts the tokens consumed by a single completion.
type TokenUsage struct {
	Input  uint64 `json:"input"`
	Output uint64 `json:"output"`
}

// ModelUsage tracks a user's recent consumption of a model.
type ModelUsage struct {
	UserID                 uint64 `json:"user_id"`
	Model                  string `json:"model"`
	RequestsThisMinute     uint64 `json:"requests_this_minute"`
	TokensThisMinute       uint64 `json:"tokens_this_minute"`
	InputTokensThisMinute  uint64 `json:"input_tokens_this_minute"`
	OutputTokensThisMinute uint64 `json:"output_tokens_this_minute"`
	TokensThisDay          uint64 `json:"tokens_this_day"`
}

// ChatToken is the validated identity carried by a chat API request.
type ChatToken struct {
	Iat                    int64     `json:"iat"`
	Exp                    int64     `json:"exp"`
	Jti                    string    `json:"jti"`
	UserID                 uint64    `json:"user_id"`
	Login                  string    `json:"login"`
	AccountCreatedAt       time.Time `json:"account_created_at"`
	IsStaff                bool      `json:"is_staff"`
	HasSubscription        bool      `json:"has_subscription"`
	MaxMonthlySpendInCents uint32    `json:"max_monthly_spend_in_cents"`
}
