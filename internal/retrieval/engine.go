// Package retrieval embeds a user query, finds the nearest stored chunks in
// a namespace, and assembles the context string for the generative model.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docuchat/docuchat/internal/metrics"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

// DefaultTopK is the number of nearest matches requested per query.
const DefaultTopK = 40

// NoContextFallback is returned when no stored chunk matches the query.
// An explicit fallback beats an empty prompt section.
const NoContextFallback = "No specific context found for this query."

// Embedder is the query-embedding slice the engine consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier is the vector store slice the engine consumes.
type Querier interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]vectorstore.Match, error)
}

// Engine retrieves context for chat questions.
type Engine struct {
	embedder Embedder
	store    Querier
	topK     int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates an Engine. topK defaults to DefaultTopK when non-positive;
// m may be nil.
func New(embedder Embedder, store Querier, topK int, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		topK:     topK,
		metrics:  m,
		logger:   logger.With("component", "retrieval"),
	}
}

// Retrieve embeds the query and assembles a context string from the topK
// nearest matches in the namespace. An embedding failure fails the whole
// retrieval.
func (e *Engine) Retrieve(ctx context.Context, query, namespace string) (string, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	matches, err := e.store.Query(ctx, namespace, vector, e.topK, nil)
	if err != nil {
		return "", fmt.Errorf("searching namespace %s: %w", namespace, err)
	}
	e.logger.Debug("query matched", "namespace", namespace, "matches", len(matches))
	if e.metrics != nil {
		e.metrics.RetrievalMatches.Observe(float64(len(matches)))
	}

	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Text == "" {
			continue
		}
		parts = append(parts, match.Text)
	}
	if len(parts) == 0 {
		return NoContextFallback, nil
	}
	return strings.Join(parts, "\n\n"), nil
}
