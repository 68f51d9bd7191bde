package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// EmbedClient is the provider call the Embedder depends on.
type EmbedClient interface {
	Configured() bool
	Embed(ctx context.Context, model, text string, dim int) ([]float32, error)
}

// Embedder generates fixed-dimension embeddings for item text.
type Embedder struct {
	client EmbedClient
	model  string
	dim    int
}

// NewEmbedder creates an Embedder using the given client and model name.
func NewEmbedder(client EmbedClient, model string, dim int) *Embedder {
	if dim <= 0 {
		dim = 768
	}
	return &Embedder{client: client, model: model, dim: dim}
}

// Dim returns the embedding dimension.
func (e *Embedder) Dim() int {
	return e.dim
}

// Embed returns the embedding vector for the given text. When no API key
// is configured it returns a zero sentinel vector so the rest of the
// pipeline stays exercisable without live credentials.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.client.Configured() {
		slog.Debug("embedder unconfigured, returning sentinel vector")
		return make([]float32, e.dim), nil
	}
	vec, err := e.client.Embed(ctx, e.model, text, e.dim)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the provider.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ItemText composes the text submitted for embedding, weighting the title
// first, then summary, then tags.
func ItemText(title, summary string, tags []string) string {
	return fmt.Sprintf("Title: %s\nSummary: %s\nTags: %s", title, summary, strings.Join(tags, ", "))
}
