package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/pkg/models"
	"chat-relay/pkg/ratelimit"
)

// ServerState holds the state behind the chat HTTP endpoints.
type ServerState struct {
	Controller *Controller
	Secret     string
	Usage      *UsageTracker
	limiter    *ratelimit.RateLimiter
}

// NewServerState creates the server state for the chat endpoints. secret
// signs and validates the chat API tokens.
func NewServerState(controller *Controller, secret string) *ServerState {
	return &ServerState{
		Controller: controller,
		Secret:     secret,
		Usage:      NewUsageTracker(),
		limiter:    ratelimit.NewRateLimiter(),
	}
}

// validateToken extracts and validates the chat token from a request.
func (s *ServerState) validateToken(r *http.Request) (*models.ChatToken, error) {
	if disableAuth := os.Getenv("DISABLE_AUTH"); disableAuth == "true" || disableAuth == "1" {
		return &models.ChatToken{
			UserID:                 1,
			Login:                  "disabled-auth-user",
			IsStaff:                true,
			HasSubscription:        true,
			MaxMonthlySpendInCents: 10000,
		}, nil
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errors.New("invalid or missing authorization header")
	}
	return auth.ValidateChatToken(strings.TrimPrefix(header, "Bearer "), s.Secret)
}

// ListModelsResponse is the response for the list models endpoint.
type ListModelsResponse struct {
	Models []models.LanguageModel `json:"models"`
}

// HandleListModels returns the models available to the caller.
func (s *ServerState) HandleListModels(w http.ResponseWriter, r *http.Request) {
	if _, err := s.validateToken(r); err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			w.Header().Set("X-Chat-Token-Expired", "true")
			http.Error(w, "token expired", http.StatusUnauthorized)
		} else {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
		return
	}

	var available []models.LanguageModel
	for _, m := range DefaultModels() {
		if m.Enabled {
			available = append(available, m)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListModelsResponse{Models: available})
}

// HandleChat handles one chat turn: it validates the caller, checks rate
// limits, and streams the (possibly multi-segment) model reply back as a
// single plain-text body.
func (s *ServerState) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	token, err := s.validateToken(r)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			w.Header().Set("X-Chat-Token-Expired", "true")
			http.Error(w, "token expired", http.StatusUnauthorized)
		} else {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
		return
	}

	limit := ratelimit.NewBasicRateLimit(60, time.Minute, "chat-requests")
	if !s.limiter.Check(limit, token.UserID) {
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 || req.Provider == "" || req.Model == "" {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if model, ok := FindModel(req.Model); ok {
		usage := s.Usage.GetModelUsage(token.UserID, req.Model)
		if err := CheckRateLimit(model, usage); err != nil {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	resp, err := s.Controller.StreamText(r.Context(), req)
	if err != nil {
		http.Error(w, StatusText(err), HTTPStatus(err))
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.Status)

	flusher, _ := w.(http.Flusher)
	var streamed int
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			streamed += n
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client went away; the deferred Close cancels the
				// upstream segment through the request context.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("chat: response stream ended with error: %v", err)
			}
			break
		}
	}

	s.Usage.RecordUsage(token.UserID, req.Model, models.TokenUsage{
		Input:  estimateMessagesTokens(req.Messages),
		Output: uint64(streamed+3) / 4,
	})
}

func estimateMessagesTokens(messages []models.Message) uint64 {
	var total uint64
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// RegisterHandlers registers the chat handlers with a router.
func (s *ServerState) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/models", s.HandleListModels)
	mux.HandleFunc("/chat", s.HandleChat)
	mux.HandleFunc("/v1/chat", s.HandleChat)
}
