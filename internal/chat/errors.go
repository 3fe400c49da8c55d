package chat

import (
	"errors"
	"net/http"
	"strings"

	"chat-relay/internal/provider"
)

// ErrMaxSegments is raised when a truncated reply cannot be continued
// because the turn already produced the maximum number of segments.
var ErrMaxSegments = errors.New("cannot continue message: maximum segments reached")

// ClassifyError determines the kind of a provider-call failure. Errors
// tagged by an adapter carry their kind; for untyped errors the lower-cased
// message text is matched against known substrings as a fallback.
func ClassifyError(err error) provider.Kind {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized"):
		return provider.KindAuth
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return provider.KindRateLimit
	default:
		return provider.KindUpstream
	}
}

// HTTPStatus maps a provider-call failure to the response status sent to
// the client.
func HTTPStatus(err error) int {
	switch ClassifyError(err) {
	case provider.KindAuth:
		return http.StatusUnauthorized
	case provider.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// StatusText returns the short textual reason reported alongside a
// non-200 response.
func StatusText(err error) string {
	switch ClassifyError(err) {
	case provider.KindAuth:
		return "Invalid or missing API key"
	case provider.KindRateLimit:
		return "Rate limit exceeded"
	default:
		return err.Error()
	}
}
