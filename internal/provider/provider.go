// Package provider defines the contract between the chat relay and the
// language model backends it streams from, plus the registry used to
// select one at request time.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chat-relay/pkg/models"
)

// Finish reasons reported by providers, normalized to the OpenAI names.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Options carries the per-call parameters for a streaming completion.
type Options struct {
	// Model is the provider-specific model identifier.
	Model string
	// APIKey is the key resolved for this provider.
	APIKey string
	// MaxTokens caps the output length of a single call.
	MaxTokens int
	// ToolChoice is forwarded verbatim; the relay always sends "none".
	ToolChoice string
}

// Outcome is the result of one completed provider call: the full text
// produced by the segment and the provider's reported finish reason.
type Outcome struct {
	Text         string
	FinishReason string
}

// Segment is one provider call's worth of streamed output. Read returns
// chunks one at a time until io.EOF; chunk shapes vary by provider SDK
// (raw bytes, text, or structured values). Outcome is valid once Read has
// returned io.EOF. Close cancels the underlying stream.
type Segment interface {
	Read(ctx context.Context) (any, error)
	Outcome() (Outcome, error)
	Close() error
}

// Provider is a streaming entry point for one model backend.
type Provider interface {
	Name() string
	Stream(ctx context.Context, messages []models.Message, opts Options) (Segment, error)
}

// Registry maps provider names to implementations. It is a plain value
// passed into the controller rather than a process-wide singleton so tests
// can assemble their own.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers, keyed by Name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
