package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/mimir-run/mimir/internal/chunker"
	"github.com/mimir-run/mimir/internal/llm/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{}

func (fakeCounter) Count(s string) int { return len(s) }

type fakeProvider struct {
	completeFn     func(ctx context.Context, req CompletionRequest) (StructuredAnswer, error)
	completeTextFn func(ctx context.Context, req TextRequest) (string, error)
	streamPartials []StructuredAnswer
}

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
	return f.completeFn(ctx, req)
}

func (f *fakeProvider) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	return f.completeTextFn(ctx, req)
}

func (f *fakeProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StructuredAnswer, <-chan error) {
	out := make(chan StructuredAnswer, len(f.streamPartials))
	errCh := make(chan error, 1)
	for _, p := range f.streamPartials {
		out <- p
	}
	close(out)
	close(errCh)
	return out, errCh
}

func newTestClient(p *fakeProvider) *Client {
	sched := ratelimit.New(ratelimit.DefaultConfig())
	return New(p, sched, fakeCounter{}, Config{MaxOutputTokens: 256})
}

func TestGenerateAnswerUsesDefaultSystemPrompt(t *testing.T) {
	var seenSystem string
	p := &fakeProvider{
		completeFn: func(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
			seenSystem = req.SystemPrompt
			return StructuredAnswer{Answer: "42"}, nil
		},
	}
	c := newTestClient(p)

	answer, err := c.GenerateAnswer(context.Background(), "what is the answer?", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "42", answer.Answer)
	assert.Equal(t, DefaultSystemPrompt, seenSystem)
}

func TestGenerateAnswerHonorsCustomSystemPrompt(t *testing.T) {
	var seenSystem string
	p := &fakeProvider{
		completeFn: func(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
			seenSystem = req.SystemPrompt
			return StructuredAnswer{Answer: "ok"}, nil
		},
	}
	c := newTestClient(p)

	_, err := c.GenerateAnswer(context.Background(), "q", nil, "be terse")
	require.NoError(t, err)
	assert.Equal(t, "be terse", seenSystem)
}

func TestStreamAnswerDeliversPartialsInOrder(t *testing.T) {
	partials := []StructuredAnswer{
		{Answer: "Hel"},
		{Answer: "Hello"},
		{Answer: "Hello, world"},
	}
	p := &fakeProvider{streamPartials: partials}
	c := newTestClient(p)

	out, errCh := c.StreamAnswer(context.Background(), "q", nil, "")

	var got []StructuredAnswer
	for partial := range out {
		got = append(got, partial)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, partials, got)
}

func TestAnswerDeltaExtractsGrowth(t *testing.T) {
	prev := StructuredAnswer{Answer: "Hello"}
	curr := StructuredAnswer{Answer: "Hello, world"}
	assert.Equal(t, ", world", AnswerDelta(prev, curr))
}

func TestAnswerDeltaEmptyWhenNoGrowth(t *testing.T) {
	prev := StructuredAnswer{Answer: "Hello"}
	curr := StructuredAnswer{Answer: "Hello"}
	assert.Equal(t, "", AnswerDelta(prev, curr))
}

func TestParseNumberedListDotMarkers(t *testing.T) {
	raw := "1. first description\n2. second description\n3. third description"
	items := parseNumberedList(raw, 3)
	require.Len(t, items, 3)
	assert.Equal(t, "first description", items[0])
	assert.Equal(t, "second description", items[1])
	assert.Equal(t, "third description", items[2])
}

func TestParseNumberedListColonAndParenMarkers(t *testing.T) {
	raw := "1) alpha\n2: beta"
	items := parseNumberedList(raw, 2)
	require.Len(t, items, 2)
	assert.Equal(t, "alpha", items[0])
	assert.Equal(t, "beta", items[1])
}

func TestParseNumberedListFallsBackToBlankLines(t *testing.T) {
	raw := "first paragraph here\n\nsecond paragraph here"
	items := parseNumberedList(raw, 2)
	require.Len(t, items, 2)
	assert.Equal(t, "first paragraph here", items[0])
	assert.Equal(t, "second paragraph here", items[1])
}

func TestParseNumberedListFallsBackToRepeatingWholeText(t *testing.T) {
	raw := "one single undifferentiated blob of text"
	items := parseNumberedList(raw, 3)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Equal(t, raw, item)
	}
}

func TestGenerateEntityContextsBatchesOfFive(t *testing.T) {
	var batchSizes []int
	p := &fakeProvider{
		completeTextFn: func(ctx context.Context, req TextRequest) (string, error) {
			batchSizes = append(batchSizes, strings.Count(req.UserPrompt, "(function)"))
			return "1. d1\n2. d2\n3. d3\n4. d4\n5. d5", nil
		},
	}
	c := newTestClient(p)

	entities := make([]chunker.Entity, 7)
	for i := range entities {
		entities[i] = chunker.Entity{Name: "fn", QualifiedName: "fn", EntityType: "function", StartLine: 1, EndLine: 2}
	}

	results, err := c.GenerateEntityContexts(context.Background(), entities, "file content", "f.go", fakeCounter{})
	require.NoError(t, err)
	assert.Len(t, results, 7)
	assert.Equal(t, []int{5, 2}, batchSizes)
}

func TestGenerateFileChunkContextsOneCallPerChunk(t *testing.T) {
	calls := 0
	p := &fakeProvider{
		completeTextFn: func(ctx context.Context, req TextRequest) (string, error) {
			calls++
			return "a summary", nil
		},
	}
	c := newTestClient(p)

	chunks := []chunker.Chunk{{ChunkID: 0, ChunkTitle: "A"}, {ChunkID: 1, ChunkTitle: "B"}}
	results, err := c.GenerateFileChunkContexts(context.Background(), chunks, "file content")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"a summary", "a summary"}, results)
}
