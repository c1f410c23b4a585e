package chunker

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Cl100kCounter counts tokens with the cl100k_base encoding, the
// spec-sanctioned stand-in for any embedding model whose own tokenizer
// isn't available locally.
type Cl100kCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewCl100kCounter returns a TokenCounter backed by cl100k_base. The
// underlying encoder is loaded lazily on first Count call so construction
// never fails.
func NewCl100kCounter() *Cl100kCounter {
	return &Cl100kCounter{}
}

func (c *Cl100kCounter) load() {
	c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
}

// Count returns the number of cl100k_base tokens in text, after the same
// HTML-escaping sanitization applied to chunk content before counting. If
// the encoder fails to load (e.g. the offline BPE ranks file is missing),
// Count falls back to a conservative 4-characters-per-token estimate so
// chunking can still make progress degraded rather than panic.
func (c *Cl100kCounter) Count(text string) int {
	c.once.Do(c.load)
	sanitized := SanitizeSpecialTokens(text)
	if c.err != nil || c.enc == nil {
		return estimateTokens(sanitized)
	}
	return len(c.enc.Encode(sanitized, nil, nil))
}

func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// ModelTokenCap returns the provider-declared max input tokens for a known
// embedding model, or DefaultTokenCap if the model is unrecognized.
func ModelTokenCap(model string) int {
	switch model {
	case "text-embedding-3-large", "text-embedding-3-small", "text-embedding-ada-002":
		return 8192
	case "gemini-embedding-001", "text-embedding-004":
		return 2048
	case "mistral-embed":
		return 8192
	default:
		return DefaultTokenCap
	}
}
