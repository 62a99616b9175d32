package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderErrorKind is the closed set of ways an upstream call can fail.
type ProviderErrorKind int

const (
	// ProviderTransient is a 429 or 503: the provider asked us to back off.
	ProviderTransient ProviderErrorKind = iota
	// ProviderOther is any other non-2xx status.
	ProviderOther
	// ProviderNetwork means no HTTP status was received at all.
	ProviderNetwork
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderTransient:
		return "transient"
	case ProviderOther:
		return "other"
	default:
		return "network"
	}
}

// ProviderError is produced by every ContentProvider implementation.
type ProviderError struct {
	Kind       ProviderErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Kind == ProviderNetwork {
		return fmt.Sprintf("gemini request failed: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("gemini http %d", e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newStatusError(status int, body string) *ProviderError {
	kind := ProviderOther
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		kind = ProviderTransient
	}
	return &ProviderError{Kind: kind, StatusCode: status, Body: truncate(body, 512)}
}

func newNetworkError(err error) *ProviderError {
	return &ProviderError{Kind: ProviderNetwork, Err: err}
}

// ErrNoStreamBody is returned when the streaming endpoint answers without a body.
var ErrNoStreamBody = errors.New("streaming response has no body")

// TranscriptFetchError aborts a generation before any model call is made.
type TranscriptFetchError struct {
	URL string
	Err error
}

func (e *TranscriptFetchError) Error() string {
	return fmt.Sprintf("failed to fetch video transcript: %v", e.Err)
}

func (e *TranscriptFetchError) Unwrap() error { return e.Err }

// ParseError means neither the direct parse nor the repair produced JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse AI response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmptyResultError means the response parsed but carried no questions.
type EmptyResultError struct{}

func (e *EmptyResultError) Error() string { return "AI response contained no questions" }

// NoValidCandidateError means no returned candidate parsed into questions.
type NoValidCandidateError struct {
	Candidates int
}

func (e *NoValidCandidateError) Error() string {
	return fmt.Sprintf("none of %d AI candidates contained valid questions", e.Candidates)
}

// AIServiceError summarizes an exhausted retry budget.
type AIServiceError struct {
	Attempts int
	Err      error
}

func (e *AIServiceError) Error() string {
	return fmt.Sprintf("AI service failed after %d retry attempts: %v", e.Attempts, e.Err)
}

func (e *AIServiceError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
