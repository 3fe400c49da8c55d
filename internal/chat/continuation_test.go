package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"chat-relay/internal/provider"
	"chat-relay/pkg/models"
)

// scriptedCall describes one provider call's behavior.
type scriptedCall struct {
	chunks []string
	finish string
	err    error
}

// scriptedProvider replays a fixed sequence of calls and records the
// message list passed to each.
type scriptedProvider struct {
	name  string
	calls []scriptedCall
	seen  [][]models.Message
	keys  []string
}

func (p *scriptedProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "scripted"
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []models.Message, opts provider.Options) (provider.Segment, error) {
	p.seen = append(p.seen, append([]models.Message(nil), messages...))
	p.keys = append(p.keys, opts.APIKey)
	if len(p.seen) > len(p.calls) {
		return nil, errors.New("unexpected provider call")
	}
	call := p.calls[len(p.seen)-1]
	if call.err != nil {
		return nil, call.err
	}
	return &scriptedSegment{chunks: call.chunks, finish: call.finish}, nil
}

type scriptedSegment struct {
	chunks []string
	finish string
	pos    int
	done   bool
}

func (s *scriptedSegment) Read(ctx context.Context) (any, error) {
	if s.pos >= len(s.chunks) {
		s.done = true
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedSegment) Outcome() (provider.Outcome, error) {
	if !s.done {
		return provider.Outcome{}, errors.New("segment still streaming")
	}
	return provider.Outcome{
		Text:         strings.Join(s.chunks, ""),
		FinishReason: s.finish,
	}, nil
}

func (s *scriptedSegment) Close() error {
	return nil
}

func newTestController(p provider.Provider) *Controller {
	return NewController(provider.NewRegistry(p))
}

func baseRequest(providerName string) TurnRequest {
	return TurnRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "Tell me a story"}},
		Provider: providerName,
		Model:    "test-model",
		APIKeys:  map[string]string{providerName: "test-key"},
	}
}

func TestSingleSegmentTurn(t *testing.T) {
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"Hello", " ", "world"}, finish: provider.FinishStop},
	}}
	c := newTestController(p)

	resp, err := c.StreamText(context.Background(), baseRequest("scripted"))
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/plain; charset=utf-8", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if got := string(body); got != "Hello world" {
		t.Errorf("body = %q, want %q", got, "Hello world")
	}
	if len(p.seen) != 1 {
		t.Errorf("provider called %d times, want 1", len(p.seen))
	}
}

func TestTruncatedTurnIsContinued(t *testing.T) {
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"Once upon a "}, finish: provider.FinishLength},
		{chunks: []string{"time."}, finish: provider.FinishStop},
	}}
	c := newTestController(p)

	resp, err := c.StreamText(context.Background(), baseRequest("scripted"))
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if got := string(body); got != "Once upon a time." {
		t.Errorf("body = %q, want %q", got, "Once upon a time.")
	}
	if len(p.seen) != 2 {
		t.Fatalf("provider called %d times, want 2", len(p.seen))
	}
}

func TestContinuationMessageShape(t *testing.T) {
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"partial output"}, finish: provider.FinishLength},
		{chunks: []string{"rest"}, finish: provider.FinishStop},
	}}
	c := newTestController(p)

	req := baseRequest("scripted")
	resp, err := c.StreamText(context.Background(), req)
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}
	io.ReadAll(resp.Body)

	second := p.seen[1]
	want := append(append([]models.Message(nil), req.Messages...),
		models.Message{Role: models.RoleAssistant, Content: "partial output"},
		models.Message{Role: models.RoleUser, Content: ContinuePrompt},
	)
	if len(second) != len(want) {
		t.Fatalf("second call got %d messages, want %d", len(second), len(want))
	}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, second[i], want[i])
		}
	}
}

func TestSegmentBudgetExhausted(t *testing.T) {
	// With a budget of N continuations, N+1 consecutive length-limited
	// replies must fail the turn without an (N+2)-th provider call.
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"a"}, finish: provider.FinishLength},
		{chunks: []string{"b"}, finish: provider.FinishLength},
		{chunks: []string{"c"}, finish: provider.FinishLength},
	}}
	c := newTestController(p)

	resp, err := c.StreamText(context.Background(), baseRequest("scripted"))
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}

	_, err = io.ReadAll(resp.Body)
	if !errors.Is(err, ErrMaxSegments) {
		t.Errorf("body error = %v, want %v", err, ErrMaxSegments)
	}
	if len(p.seen) != MaxResponseSegments+1 {
		t.Errorf("provider called %d times, want %d", len(p.seen), MaxResponseSegments+1)
	}
}

func TestFirstCallErrorIsReturned(t *testing.T) {
	wantErr := provider.Errorf(provider.KindAuth, "scripted: invalid api key")
	p := &scriptedProvider{calls: []scriptedCall{{err: wantErr}}}
	c := newTestController(p)

	_, err := c.StreamText(context.Background(), baseRequest("scripted"))
	if err == nil {
		t.Fatal("StreamText() error = nil, want auth error")
	}
	if got := HTTPStatus(err); got != 401 {
		t.Errorf("HTTPStatus() = %d, want 401", got)
	}
}

func TestLaterCallErrorFailsStream(t *testing.T) {
	upstream := errors.New("connection reset")
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"start"}, finish: provider.FinishLength},
		{err: upstream},
	}}
	c := newTestController(p)

	resp, err := c.StreamText(context.Background(), baseRequest("scripted"))
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}

	_, err = io.ReadAll(resp.Body)
	if !errors.Is(err, upstream) {
		t.Errorf("body error = %v, want %v", err, upstream)
	}
}

func TestDefaultAPIKeyFallback(t *testing.T) {
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"ok"}, finish: provider.FinishStop},
	}}
	c := newTestController(p)
	c.DefaultKeys = map[string]string{"scripted": "server-key"}

	req := baseRequest("scripted")
	req.APIKeys = nil
	resp, err := c.StreamText(context.Background(), req)
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}
	io.ReadAll(resp.Body)

	if len(p.keys) != 1 || p.keys[0] != "server-key" {
		t.Errorf("provider keys = %v, want [server-key]", p.keys)
	}
}

func TestRequestKeyOverridesDefault(t *testing.T) {
	p := &scriptedProvider{calls: []scriptedCall{
		{chunks: []string{"ok"}, finish: provider.FinishStop},
	}}
	c := newTestController(p)
	c.DefaultKeys = map[string]string{"scripted": "server-key"}

	resp, err := c.StreamText(context.Background(), baseRequest("scripted"))
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}
	io.ReadAll(resp.Body)

	if len(p.keys) != 1 || p.keys[0] != "test-key" {
		t.Errorf("provider keys = %v, want [test-key]", p.keys)
	}
}

func TestUnknownProvider(t *testing.T) {
	c := newTestController(&scriptedProvider{})
	_, err := c.StreamText(context.Background(), baseRequest("missing"))
	if err == nil {
		t.Fatal("StreamText() with unknown provider should fail")
	}
}
