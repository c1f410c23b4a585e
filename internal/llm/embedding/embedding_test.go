package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/mimir-run/mimir/internal/llm/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{}

func (fakeCounter) Count(s string) int { return len(s) }

// fakeProvider returns a deterministic vector keyed on input length so tests
// can assert order without depending on a real embedding model.
type fakeProvider struct {
	dim     int
	calls   [][]string
	failFor string
}

func (f *fakeProvider) Dimension() int { return f.dim }

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	f.calls = append(f.calls, append([]string{}, texts...))
	out := make([]Vector, len(texts))
	for i, t := range texts {
		if t == f.failFor {
			return nil, errors.New("simulated provider failure")
		}
		out[i] = Vector{float32(len(t))}
	}
	return out, nil
}

func newTestClient(p *fakeProvider, batchSize int) *Client {
	sched := ratelimit.New(ratelimit.DefaultConfig())
	return New(p, sched, fakeCounter{}, Config{BatchSize: batchSize})
}

func TestEmbedDocumentsPreservesOrder(t *testing.T) {
	p := &fakeProvider{dim: 1}
	c := newTestClient(p, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		assert.Equal(t, Vector{float32(len(text))}, vecs[i])
	}
}

func TestEmbedDocumentsBatchesAtDoubleBatchSize(t *testing.T) {
	p := &fakeProvider{dim: 1}
	c := newTestClient(p, 2) // batchLimit = 4

	texts := []string{"1", "2", "3", "4", "5", "6"}
	_, err := c.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, p.calls, 2)
	assert.Len(t, p.calls[0], 4)
	assert.Len(t, p.calls[1], 2)
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	p := &fakeProvider{dim: 1}
	c := newTestClient(p, 2)
	vecs, err := c.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedQueryDelegatesToDocuments(t *testing.T) {
	p := &fakeProvider{dim: 1}
	c := newTestClient(p, 2)
	vec, err := c.EmbedQuery(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, Vector{float32(len("question"))}, vec)
}

func TestEmbedDocumentsFailsWholeBatchOnProviderError(t *testing.T) {
	p := &fakeProvider{dim: 1, failFor: "bad"}
	cfg := ratelimit.DefaultConfig()
	cfg.Retries = 0
	sched := ratelimit.New(cfg)
	c := New(p, sched, fakeCounter{}, Config{BatchSize: 2})

	_, err := c.EmbedDocuments(context.Background(), []string{"good", "bad", "also-good"})
	require.Error(t, err)
}
