package chat

import (
	"context"
	"io"
	"log"
	"net/http"

	"chat-relay/internal/provider"
	"chat-relay/pkg/models"
)

// TurnRequest is the input for one logical chat turn.
type TurnRequest struct {
	Messages []models.Message  `json:"messages"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	APIKeys  map[string]string `json:"apiKeys"`
}

// Response is the HTTP-shaped result of a turn. Body is the multiplexer's
// outbound stream; it keeps producing while continuation segments are
// fetched behind it.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Controller orchestrates one chat turn across one or more provider calls
// so the client perceives a single uninterrupted response.
type Controller struct {
	Registry *provider.Registry
	// DefaultKeys supplies per-provider API keys for requests that carry
	// none of their own, typically from server-side environment config.
	DefaultKeys map[string]string
	// MaxSegments overrides MaxResponseSegments when non-zero. Used by
	// tests; production code leaves it at zero.
	MaxSegments int
}

// NewController creates a Controller over the given provider registry.
func NewController(registry *provider.Registry) *Controller {
	return &Controller{Registry: registry}
}

func (c *Controller) maxSegments() int {
	if c.MaxSegments > 0 {
		return c.MaxSegments
	}
	return MaxResponseSegments
}

// StreamText issues the first provider call for the turn and returns a
// Response backed by the multiplexer's outbound stream. It returns as soon
// as the first call has been issued; pumping, finish-reason evaluation, and
// any continuation calls happen asynchronously behind the returned body.
//
// Errors from the first provider call are returned to the caller so the
// HTTP layer can map them to a status code. Errors on later segments put
// the body into an error state instead.
func (c *Controller) StreamText(ctx context.Context, req TurnRequest) (*Response, error) {
	p, err := c.Registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	conv := NewConversation(req.Messages)
	key := req.APIKeys[req.Provider]
	if key == "" {
		key = c.DefaultKeys[req.Provider]
	}
	opts := provider.Options{
		Model:      req.Model,
		APIKey:     key,
		MaxTokens:  MaxTokens,
		ToolChoice: "none",
	}

	segment, err := p.Stream(ctx, conv.Messages(), opts)
	if err != nil {
		return nil, err
	}

	mux := NewMultiplexer()
	go c.drive(ctx, mux, conv, p, opts, segment)

	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{
		Status: http.StatusOK,
		Header: header,
		Body:   mux.Reader(),
	}, nil
}

// drive pumps segments through the multiplexer until a segment finishes for
// a reason other than hitting the output-token ceiling, the segment budget
// is exhausted, or an error occurs.
func (c *Controller) drive(ctx context.Context, mux *Multiplexer, conv *Conversation, p provider.Provider, opts provider.Options, segment provider.Segment) {
	adopt := mux.StartSource
	for {
		if err := adopt(ctx, segment); err != nil {
			// adopt already put the outbound stream into an error
			// state.
			log.Printf("chat: segment pump failed: %v", err)
			return
		}
		adopt = mux.SwitchSource

		outcome, err := segment.Outcome()
		if err != nil {
			mux.CloseWithError(err)
			return
		}

		if outcome.FinishReason != provider.FinishLength {
			mux.Close()
			return
		}

		if mux.Switches() >= c.maxSegments() {
			mux.CloseWithError(ErrMaxSegments)
			return
		}

		conv.AppendContinuation(outcome.Text)

		segment, err = p.Stream(ctx, conv.Messages(), opts)
		if err != nil {
			mux.CloseWithError(err)
			return
		}
	}
}
