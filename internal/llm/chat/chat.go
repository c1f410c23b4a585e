// Package chat provides the structured chat-completion client used both to
// answer user questions with citations and to generate the short contextual
// summaries the reconciler prepends to new chunks before embedding.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/mimir-run/mimir/internal/llm/ratelimit"
)

// Source is one citation in a structured answer: enough to resolve back to
// a retrieved chunk by (filepath, chunkTitle).
type Source struct {
	FilePath   string `json:"filePath"`
	ChunkTitle string `json:"chunkTitle"`
}

// StructuredAnswer is the chat completion response schema: { sources,
// answer }. A streaming call yields a sequence of these as cumulative
// partials; Answer only ever grows, never shrinks, across the sequence.
type StructuredAnswer struct {
	Sources []Source `json:"sources"`
	Answer  string   `json:"answer"`
}

// ContextChunk is one retrieved chunk handed to the model as grounding
// context for generateAnswer.
type ContextChunk struct {
	FilePath   string
	ChunkTitle string
	Content    string
}

// CompletionRequest is the provider-agnostic shape of a structured
// completion call.
type CompletionRequest struct {
	SystemPrompt    string
	UserPrompt      string
	ContextChunks   []ContextChunk
	Temperature     float64
	MaxOutputTokens int
}

// TextRequest is a plain (non-structured) completion call used for entity
// and file-chunk context generation.
type TextRequest struct {
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
}

// Provider is the capability one vendor backend must implement. Anthropic
// implements only chat (no embedding), matching spec.md §9's design note
// that Anthropic supports chat only.
type Provider interface {
	// Complete returns a single structured answer for req.
	Complete(ctx context.Context, req CompletionRequest) (StructuredAnswer, error)
	// StreamComplete returns a channel of cumulative StructuredAnswer
	// partials; the channel is closed when the stream ends, and an error
	// encountered mid-stream is returned on the error channel.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StructuredAnswer, <-chan error)
	// CompleteText returns a plain text completion for req (used for
	// context generation, which has no structured schema).
	CompleteText(ctx context.Context, req TextRequest) (string, error)
}

// TokenEstimator estimates the token cost of prompt text, used to reserve
// scheduler capacity before a call.
type TokenEstimator interface {
	Count(text string) int
}

// DefaultSystemPrompt is used for generateAnswer when the caller supplies
// none and no "system" message overrides it at the HTTP layer.
const DefaultSystemPrompt = "You are a helpful documentation assistant. Answer the user's question using only the provided context. Cite the files and sections you used."

// NoContextFallbackAnswer is returned by the answer composer when
// retrieval produced zero chunks (spec.md §8 "Retrieval with zero matches").
const NoContextFallbackAnswer = "I could not find relevant context to answer this question."

// Client is the provider-agnostic chat entry point.
type Client struct {
	provider        Provider
	scheduler       *ratelimit.Scheduler
	estimator       TokenEstimator
	maxOutputTokens int
}

// Config parameterizes the Client.
type Config struct {
	MaxOutputTokens int
	Temperature     float64
}

// New builds a Client around one vendor Provider, scheduled through sched.
func New(provider Provider, sched *ratelimit.Scheduler, estimator TokenEstimator, cfg Config) *Client {
	maxOut := cfg.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = 1024
	}
	return &Client{provider: provider, scheduler: sched, estimator: estimator, maxOutputTokens: maxOut}
}

// estimateTokens sums spec.md §4.4's chat reservation formula:
// tokens(system) + tokens(user) + tokens(context) + tokens(maxOutput).
func (c *Client) estimateTokens(systemPrompt, userPrompt string, contextChunks []ContextChunk) int {
	total := c.estimator.Count(systemPrompt) + c.estimator.Count(userPrompt) + c.maxOutputTokens
	for _, ch := range contextChunks {
		total += c.estimator.Count(ch.Content)
	}
	return total
}

// GenerateAnswer issues a single-shot structured completion: prompt plus
// contextChunks, returning { sources, answer }. An empty systemPrompt uses
// DefaultSystemPrompt.
func (c *Client) GenerateAnswer(ctx context.Context, prompt string, contextChunks []ContextChunk, systemPrompt string) (StructuredAnswer, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	req := CompletionRequest{
		SystemPrompt:    systemPrompt,
		UserPrompt:      prompt,
		ContextChunks:   contextChunks,
		MaxOutputTokens: c.maxOutputTokens,
	}

	tokens := c.estimateTokens(systemPrompt, prompt, contextChunks)
	var answer StructuredAnswer
	err := c.scheduler.Do(ctx, tokens, func(ctx context.Context) error {
		a, err := c.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	if err != nil {
		return StructuredAnswer{}, fmt.Errorf("generating answer: %w", err)
	}
	return answer, nil
}

// StreamAnswer issues a streaming structured completion. Callers read
// cumulative partials from the returned channel and extract deltas with
// AnswerDelta; the channel closes at stream end, after which the error
// channel (if any) should be checked.
//
// The scheduler's concurrency slot is held for the lifetime of the stream.
// StreamAnswer itself returns at once; a background goroutine waits for
// admission exactly like GenerateAnswer, then relays the provider's stream
// once admitted.
func (c *Client) StreamAnswer(ctx context.Context, prompt string, contextChunks []ContextChunk, systemPrompt string) (<-chan StructuredAnswer, <-chan error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	req := CompletionRequest{
		SystemPrompt:  systemPrompt,
		UserPrompt:    prompt,
		ContextChunks: contextChunks,
	}

	out := make(chan StructuredAnswer)
	errCh := make(chan error, 1)

	tokens := c.estimateTokens(systemPrompt, prompt, contextChunks)
	go func() {
		defer close(out)
		err := c.scheduler.Do(ctx, tokens, func(ctx context.Context) error {
			partials, providerErrCh := c.provider.StreamComplete(ctx, req)
			for {
				select {
				case p, ok := <-partials:
					if !ok {
						// Pick up an error the provider sent before closing.
						if providerErrCh != nil {
							select {
							case err := <-providerErrCh:
								return err
							default:
							}
						}
						return nil
					}
					select {
					case out <- p:
					case <-ctx.Done():
						return ctx.Err()
					}
				case err, ok := <-providerErrCh:
					if !ok {
						// Closed without an error: keep draining partials.
						providerErrCh = nil
						continue
					}
					if err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
		if err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return out, errCh
}

// AnswerDelta returns the portion of curr.Answer not already present in
// prev.Answer, per spec.md §4.6: partial_n.answer[len(partial_{n-1}.answer):].
// prev may be the zero value for the first partial.
func AnswerDelta(prev, curr StructuredAnswer) string {
	if len(curr.Answer) <= len(prev.Answer) {
		return ""
	}
	return curr.Answer[len(prev.Answer):]
}

// buildContextBlock renders contextChunks into the plain-text block
// prepended to every completion's user-visible prompt.
func buildContextBlock(chunks []ContextChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, c.ChunkTitle, c.FilePath, c.Content)
	}
	return sb.String()
}
