package provider

import "fmt"

// Kind classifies a provider-call failure so the HTTP layer can map it to a
// status code without inspecting error message text.
type Kind int

const (
	// KindUpstream is any provider failure that is neither an auth nor a
	// rate-limit problem.
	KindUpstream Kind = iota
	// KindAuth covers invalid, missing, or expired API keys.
	KindAuth
	// KindRateLimit covers provider-side throttling.
	KindRateLimit
)

// Error wraps a provider failure with its classified kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError classifies err under kind.
func WrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindFromStatus maps an upstream HTTP status code to an error kind.
func KindFromStatus(status int) Kind {
	switch status {
	case 401, 403:
		return KindAuth
	case 429:
		return KindRateLimit
	default:
		return KindUpstream
	}
}
