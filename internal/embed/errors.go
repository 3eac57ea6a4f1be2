package embed

import "fmt"

// Reason classifies embedding provider failures. During bulk ingestion these
// are tolerated per chunk; during single-query retrieval they are fatal.
type Reason string

const (
	ReasonUnauthorized        Reason = "unauthorized"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonModelLoading        Reason = "model_loading"
	ReasonProviderError       Reason = "provider_error"
	ReasonNoEmbeddingReturned Reason = "no_embedding_returned"
)

// Error is a normalized embedding provider failure.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embedding failed: %s", e.Reason)
	}
	return fmt.Sprintf("embedding failed (%s): %s", e.Reason, e.Message)
}
