// Package openaicompat streams chat completions from any endpoint speaking
// the OpenAI chat-completions SSE protocol.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-relay/internal/provider"
	"chat-relay/pkg/models"
)

// Client is a provider.Provider over an OpenAI-compatible HTTP endpoint.
type Client struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// New creates a client registered under name that posts completion requests
// to endpoint.
func New(name, endpoint string) *Client {
	return &Client{
		name:       name,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the registry name of this provider.
func (c *Client) Name() string {
	return c.name
}

// completionRequest is the wire shape of an OpenAI-style streaming request.
type completionRequest struct {
	Model      string           `json:"model"`
	Messages   []models.Message `json:"messages"`
	MaxTokens  int              `json:"max_tokens,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
	Stream     bool             `json:"stream"`
}

// Stream issues a streaming chat-completion request and returns the live
// segment. Non-2xx upstream responses are classified by status code.
func (c *Client) Stream(ctx context.Context, messages []models.Message, opts provider.Options) (provider.Segment, error) {
	if opts.APIKey == "" {
		return nil, provider.Errorf(provider.KindAuth, "%s: missing api key", c.name)
	}

	body, err := json.Marshal(completionRequest{
		Model:      opts.Model,
		Messages:   messages,
		MaxTokens:  opts.MaxTokens,
		ToolChoice: opts.ToolChoice,
		Stream:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.Errorf(provider.KindUpstream, "%s: %v", c.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, provider.Errorf(provider.KindFromStatus(resp.StatusCode),
			"%s: %s - %s", c.name, resp.Status, strings.TrimSpace(string(detail)))
	}

	return &segment{
		resp:    resp,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// segment reads one SSE response body, yielding delta content strings and
// collecting the finish reason.
type segment struct {
	resp    *http.Response
	scanner *bufio.Scanner
	text    strings.Builder
	finish  string
	done    bool
}

// sseChunk is the subset of a streamed completion chunk the relay uses.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (s *segment) Read(ctx context.Context) (any, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := line[6:]
		if data == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finish = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		s.text.WriteString(choice.Delta.Content)
		return choice.Delta.Content, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, provider.WrapError(provider.KindUpstream, err)
	}
	s.done = true
	return nil, io.EOF
}

func (s *segment) Outcome() (provider.Outcome, error) {
	if !s.done {
		return provider.Outcome{}, fmt.Errorf("segment still streaming")
	}
	finish := s.finish
	if finish == "" {
		finish = provider.FinishStop
	}
	return provider.Outcome{Text: s.text.String(), FinishReason: finish}, nil
}

func (s *segment) Close() error {
	return s.resp.Body.Close()
}
