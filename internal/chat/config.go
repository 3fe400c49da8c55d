package chat

import "chat-relay/pkg/models"

// DefaultModels returns the models the relay offers by default, with their
// per-user rate limits.
func DefaultModels() []models.LanguageModel {
	return []models.LanguageModel{
		{
			ID:                       "gpt-4o",
			Name:                     "gpt-4o",
			Provider:                 models.ProviderOpenAI,
			MaxRequestsPerMinute:     25,
			MaxTokensPerMinute:       50000,
			MaxInputTokensPerMinute:  25000,
			MaxOutputTokensPerMinute: 25000,
			MaxTokensPerDay:          1000000,
			Enabled:                  true,
		},
		{
			ID:                       "gpt-4o-mini",
			Name:                     "gpt-4o-mini",
			Provider:                 models.ProviderOpenAI,
			MaxRequestsPerMinute:     50,
			MaxTokensPerMinute:       100000,
			MaxInputTokensPerMinute:  50000,
			MaxOutputTokensPerMinute: 50000,
			MaxTokensPerDay:          2000000,
			Enabled:                  true,
		},
		{
			ID:                       "gemini-2.0-flash",
			Name:                     "gemini-2.0-flash",
			Provider:                 models.ProviderGoogle,
			MaxRequestsPerMinute:     50,
			MaxTokensPerMinute:       100000,
			MaxInputTokensPerMinute:  50000,
			MaxOutputTokensPerMinute: 50000,
			MaxTokensPerDay:          2000000,
			Enabled:                  true,
		},
	}
}

// FindModel looks a model up by name in the default set.
func FindModel(name string) (models.LanguageModel, bool) {
	for _, m := range DefaultModels() {
		if m.Name == name {
			return m, true
		}
	}
	return models.LanguageModel{}, false
}
