package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-relay/internal/provider"
	"chat-relay/pkg/models"
)

func sseBody(lines ...string) string {
	var body string
	for _, line := range lines {
		body += "data: " + line + "\n\n"
	}
	return body
}

func deltaChunk(content, finish string) string {
	chunk := map[string]any{
		"choices": []map[string]any{{
			"delta":         map[string]any{"content": content},
			"finish_reason": finish,
		}},
	}
	b, _ := json.Marshal(chunk)
	return string(b)
}

func drain(t *testing.T, seg provider.Segment) []string {
	t.Helper()
	var chunks []string
	for {
		chunk, err := seg.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		chunks = append(chunks, chunk.(string))
	}
}

func TestStreamDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}

		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "test-model" || !req.Stream {
			t.Errorf("request = %+v, want model test-model with stream true", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
			t.Errorf("messages = %+v, want the original conversation", req.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			deltaChunk("Hello", ""),
			deltaChunk(" world", ""),
			deltaChunk("", "stop"),
			"[DONE]",
		))
	}))
	defer server.Close()

	client := New("compat", server.URL)
	seg, err := client.Stream(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "hi"},
	}, provider.Options{Model: "test-model", APIKey: "sk-test", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer seg.Close()

	chunks := drain(t, seg)
	if len(chunks) != 2 || chunks[0] != "Hello" || chunks[1] != " world" {
		t.Errorf("chunks = %v, want [Hello,  world]", chunks)
	}

	outcome, err := seg.Outcome()
	if err != nil {
		t.Fatalf("Outcome() error = %v", err)
	}
	if outcome.Text != "Hello world" {
		t.Errorf("Text = %q, want %q", outcome.Text, "Hello world")
	}
	if outcome.FinishReason != provider.FinishStop {
		t.Errorf("FinishReason = %q, want stop", outcome.FinishReason)
	}
}

func TestStreamLengthFinish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody(deltaChunk("Once upon", "length"), "[DONE]"))
	}))
	defer server.Close()

	client := New("compat", server.URL)
	seg, err := client.Stream(context.Background(), nil, provider.Options{Model: "m", APIKey: "k"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer seg.Close()

	drain(t, seg)
	outcome, err := seg.Outcome()
	if err != nil {
		t.Fatalf("Outcome() error = %v", err)
	}
	if outcome.FinishReason != provider.FinishLength {
		t.Errorf("FinishReason = %q, want length", outcome.FinishReason)
	}
}

func TestStreamEndsWithoutDoneMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody(deltaChunk("partial", "")))
	}))
	defer server.Close()

	client := New("compat", server.URL)
	seg, err := client.Stream(context.Background(), nil, provider.Options{Model: "m", APIKey: "k"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer seg.Close()

	chunks := drain(t, seg)
	if len(chunks) != 1 || chunks[0] != "partial" {
		t.Errorf("chunks = %v, want [partial]", chunks)
	}
	outcome, err := seg.Outcome()
	if err != nil {
		t.Fatalf("Outcome() error = %v", err)
	}
	if outcome.FinishReason != provider.FinishStop {
		t.Errorf("FinishReason = %q, want default stop", outcome.FinishReason)
	}
}

func TestStreamSkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody("{not json", deltaChunk("ok", ""), "[DONE]"))
	}))
	defer server.Close()

	client := New("compat", server.URL)
	seg, err := client.Stream(context.Background(), nil, provider.Options{Model: "m", APIKey: "k"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer seg.Close()

	chunks := drain(t, seg)
	if len(chunks) != 1 || chunks[0] != "ok" {
		t.Errorf("chunks = %v, want [ok]", chunks)
	}
}

func TestStreamMissingAPIKey(t *testing.T) {
	client := New("compat", "http://unused.invalid")

	_, err := client.Stream(context.Background(), nil, provider.Options{Model: "m"})
	var perr *provider.Error
	if !errors.As(err, &perr) || perr.Kind != provider.KindAuth {
		t.Errorf("Stream() error = %v, want KindAuth", err)
	}
}

func TestStreamUpstreamStatusClassified(t *testing.T) {
	tests := []struct {
		status int
		want   provider.Kind
	}{
		{http.StatusUnauthorized, provider.KindAuth},
		{http.StatusTooManyRequests, provider.KindRateLimit},
		{http.StatusInternalServerError, provider.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			}))
			defer server.Close()

			client := New("compat", server.URL)
			_, err := client.Stream(context.Background(), nil, provider.Options{Model: "m", APIKey: "k"})
			var perr *provider.Error
			if !errors.As(err, &perr) || perr.Kind != tt.want {
				t.Errorf("Stream() error = %v, want kind %v", err, tt.want)
			}
		})
	}
}

func TestOutcomeWhileStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody(deltaChunk("a", ""), "[DONE]"))
	}))
	defer server.Close()

	client := New("compat", server.URL)
	seg, err := client.Stream(context.Background(), nil, provider.Options{Model: "m", APIKey: "k"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer seg.Close()

	if _, err := seg.Outcome(); err == nil {
		t.Error("Outcome() before EOF = nil error, want still-streaming error")
	}
}
