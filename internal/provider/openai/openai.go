// Package openai adapts the official OpenAI SDK streaming client to the
// relay's provider interface.
package openai

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"

	"chat-relay/internal/provider"
	"chat-relay/pkg/models"
)

// Provider streams chat completions from the OpenAI API.
type Provider struct {
	// BaseURL overrides the API endpoint; empty uses the default.
	BaseURL string
}

// New creates an OpenAI provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the registry name of this provider.
func (p *Provider) Name() string {
	return string(models.ProviderOpenAI)
}

// Stream issues a streaming chat completion. The first event is pulled
// eagerly so call-setup failures (bad key, throttling) surface here rather
// than mid-stream.
func (p *Provider) Stream(ctx context.Context, messages []models.Message, opts provider.Options) (provider.Segment, error) {
	if opts.APIKey == "" {
		return nil, provider.Errorf(provider.KindAuth, "openai: missing api key")
	}

	ropts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if p.BaseURL != "" {
		ropts = append(ropts, option.WithBaseURL(p.BaseURL))
	}
	client := openai.NewClient(ropts...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(opts.Model),
		Messages: convertMessages(messages),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)

	seg := &segment{stream: stream}
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, classify(err)
		}
		seg.done = true
		return seg, nil
	}
	seg.pending = stream.Current()
	seg.hasPending = true
	return seg, nil
}

func convertMessages(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return provider.WrapError(provider.KindFromStatus(apierr.StatusCode), err)
	}
	return provider.WrapError(provider.KindUpstream, err)
}

// segment wraps the SDK's SSE stream, yielding delta text chunks.
type segment struct {
	stream     *ssestream.Stream[openai.ChatCompletionChunk]
	pending    openai.ChatCompletionChunk
	hasPending bool
	text       strings.Builder
	finish     string
	done       bool
}

func (s *segment) Read(ctx context.Context) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var chunk openai.ChatCompletionChunk
		switch {
		case s.hasPending:
			chunk = s.pending
			s.hasPending = false
		case s.done:
			return nil, io.EOF
		case s.stream.Next():
			chunk = s.stream.Current()
		default:
			if err := s.stream.Err(); err != nil {
				return nil, classify(err)
			}
			s.done = true
			return nil, io.EOF
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finish = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}
		s.text.WriteString(choice.Delta.Content)
		return choice.Delta.Content, nil
	}
}

func (s *segment) Outcome() (provider.Outcome, error) {
	if !s.done {
		return provider.Outcome{}, errors.New("openai: segment still streaming")
	}
	finish := s.finish
	if finish == "" {
		finish = provider.FinishStop
	}
	return provider.Outcome{Text: s.text.String(), FinishReason: finish}, nil
}

func (s *segment) Close() error {
	return s.stream.Close()
}
