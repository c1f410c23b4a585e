// Package embedding provides the batched, rate-limited embedding client
// used both to embed chunk contextual text during ingestion and to embed a
// user's question at query time.
package embedding

import (
	"context"
	"fmt"

	"github.com/mimir-run/mimir/internal/llm/ratelimit"
)

// Vector is a fixed-length embedding. Its length must stay constant across
// the lifetime of a table; mixing dimensions is a schema error the vector
// store surfaces, not something this package enforces.
type Vector []float32

// Provider is the capability one vendor backend must implement: embed a
// batch of input texts, returning one vector per input in the same order.
// No billed token count is returned; the scheduler reserves the estimate
// made before the call.
type Provider interface {
	// Embed returns one vector per text in texts, in order.
	Embed(ctx context.Context, texts []string) ([]Vector, error)
	// Dimension reports this provider/model's embedding width.
	Dimension() int
}

// TokenEstimator estimates the token cost of a batch of texts, used to
// reserve scheduler capacity before a call is made.
type TokenEstimator interface {
	Count(text string) int
}

// Config parameterizes the Client.
type Config struct {
	BatchSize int // provider's declared max inputs per call
}

// Client is the provider-agnostic embedding entry point: embedDocuments and
// embedQuery from spec.md §4.5.
type Client struct {
	provider  Provider
	scheduler *ratelimit.Scheduler
	estimator TokenEstimator
	batchSize int
}

// New builds a Client around one vendor Provider, scheduled through sched
// and batched at cfg.BatchSize inputs per underlying call (doubled per
// spec.md §4.5's empirical partitioning rule).
func New(provider Provider, sched *ratelimit.Scheduler, estimator TokenEstimator, cfg Config) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Client{provider: provider, scheduler: sched, estimator: estimator, batchSize: batchSize}
}

// EmbedDocuments partitions texts into batches of 2*batchSize, schedules
// each batch through the rate limiter, and returns one vector per input in
// the original order regardless of which batch completes first. Any single
// batch whose retries are exhausted fails the whole call with the last
// provider error.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchLimit := 2 * c.batchSize
	result := make([]Vector, len(texts))

	for start := 0; start < len(texts); start += batchLimit {
		end := start + batchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		tokens := 0
		for _, t := range batch {
			tokens += c.estimator.Count(t)
		}

		var vectors []Vector
		err := c.scheduler.Do(ctx, tokens, func(ctx context.Context) error {
			v, err := c.provider.Embed(ctx, batch)
			if err != nil {
				return err
			}
			if len(v) != len(batch) {
				return fmt.Errorf("embedding: provider returned %d vectors for %d inputs", len(v), len(batch))
			}
			vectors = v
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}

		copy(result[start:end], vectors)
	}

	return result, nil
}

// EmbedQuery embeds a single query string, delegating to EmbedDocuments.
func (c *Client) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimension reports the underlying provider's embedding width.
func (c *Client) Dimension() int { return c.provider.Dimension() }
