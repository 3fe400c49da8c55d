// Package gemini adapts the Google Gemini SDK streaming client to the
// relay's provider interface.
package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"

	"chat-relay/internal/provider"
	"chat-relay/pkg/models"
)

// Provider streams chat completions from the Gemini API.
type Provider struct{}

// New creates a Gemini provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the registry name of this provider.
func (p *Provider) Name() string {
	return string(models.ProviderGoogle)
}

// Stream issues a streaming generate-content request.
func (p *Provider) Stream(ctx context.Context, messages []models.Message, opts provider.Options) (provider.Segment, error) {
	if opts.APIKey == "" {
		return nil, provider.Errorf(provider.KindAuth, "gemini: missing api key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, provider.Errorf(provider.KindUpstream, "gemini: %v", err)
	}

	contents, system := convertMessages(messages)
	config := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, opts.Model, contents, config))
	return &segment{next: next, stop: stop}, nil
}

func convertMessages(messages []models.Message) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   strings.Builder
	)
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		case models.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents, system.String()
}

// segment pulls streamed responses, yielding concatenated text parts.
type segment struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	text   strings.Builder
	finish string
	done   bool
}

func (s *segment) Read(ctx context.Context) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.done {
			return nil, io.EOF
		}

		resp, err, ok := s.next()
		if !ok {
			s.done = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, provider.WrapError(provider.KindUpstream, err)
		}
		if len(resp.Candidates) == 0 {
			continue
		}

		candidate := resp.Candidates[0]
		if candidate.FinishReason != genai.FinishReasonUnspecified {
			s.finish = normalizeFinish(candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}

		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() == 0 {
			continue
		}
		s.text.WriteString(sb.String())
		return sb.String(), nil
	}
}

// normalizeFinish maps Gemini finish reasons onto the relay's vocabulary:
// the output-ceiling reason must surface as "length" for the continuation
// logic to fire.
func normalizeFinish(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return provider.FinishStop
	case genai.FinishReasonMaxTokens:
		return provider.FinishLength
	default:
		return strings.ToLower(string(reason))
	}
}

func (s *segment) Outcome() (provider.Outcome, error) {
	if !s.done {
		return provider.Outcome{}, errors.New("gemini: segment still streaming")
	}
	finish := s.finish
	if finish == "" {
		finish = provider.FinishStop
	}
	return provider.Outcome{Text: s.text.String(), FinishReason: finish}, nil
}

func (s *segment) Close() error {
	s.stop()
	s.done = true
	return nil
}
