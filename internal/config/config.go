// Package config loads mimir's MIMIR_* environment-variable configuration,
// grounded on the teacher's internal/config.Load precedence pattern
// (env-scan with per-field defaults, validated once at the end) but
// trimmed to mimir's env-only surface: spec.md §6 lists no config-file
// option, so the teacher's YAML/JSON file layer is not carried over.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ProviderConfig is the common shape of one LLM provider binding:
// vendor, model, credentials, and the rate-limiter's admission limits.
type ProviderConfig struct {
	Provider             string
	Model                string
	APIKey               string
	BaseURL              string
	Dimension            int // embedding width; unused by chat providers
	BatchSize            int
	Concurrency          int
	MaxRequestsPerMinute int
	MaxTokensPerMinute   int
	Retries              int
}

// ChatProviderConfig extends ProviderConfig with the chat-only completion
// parameters spec.md §6 lists under MIMIR_LLM_CHAT_*.
type ChatProviderConfig struct {
	ProviderConfig
	Temperature     float64
	MaxOutputTokens int
}

// Config is mimir's fully loaded, validated configuration.
type Config struct {
	ServerAPIKey        string
	GithubWebhookSecret string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseTable          string

	SimilarityThreshold float64
	MatchCount          int
	BM25MatchCount      int
	HybridSearchEnabled bool

	ExcludePatterns []string

	Embedding ProviderConfig
	Chat      ChatProviderConfig

	LogLevel  string
	LogFormat string

	// RedisURL backs the HTTP rate-limit middleware's distributed limiter,
	// grounded on the teacher's internal/security/ratelimit Redis backend.
	// Empty means the middleware falls back to its in-memory limiter, same
	// as the teacher's own Redis-unavailable fallback.
	RedisURL string

	// SentryDSN enables the ambient Sentry error-reporting tee the
	// teacher's internal/observability.Logger/ErrorHandler already support;
	// empty disables it, same as the teacher's Observability.Sentry.Enabled
	// toggle.
	SentryDSN string
}

// SentryEnabled reports whether a Sentry DSN was configured.
func (c *Config) SentryEnabled() bool {
	return c.SentryDSN != ""
}

// recognizedExact lists every singular MIMIR_* key spec.md §6 names.
// Repo-scope and per-provider families are recognized by prefix instead,
// since their N/provider-specific suffixes aren't enumerable up front.
var recognizedExact = map[string]bool{
	"MIMIR_SERVER_API_KEY":                true,
	"MIMIR_SERVER_GITHUB_WEBHOOK_SECRET":  true,
	"MIMIR_SUPABASE_URL":                  true,
	"MIMIR_SUPABASE_SERVICE_ROLE_KEY":     true,
	"MIMIR_SUPABASE_TABLE":                true,
	"MIMIR_SUPABASE_SIMILARITY_THRESHOLD": true,
	"MIMIR_SUPABASE_MATCH_COUNT":          true,
	"MIMIR_SUPABASE_BM25_MATCH_COUNT":     true,
	"MIMIR_SUPABASE_ENABLE_HYBRID_SEARCH": true,
	"MIMIR_EXCLUDE_PATTERNS":              true,
	"MIMIR_LOG_LEVEL":                     true,
	"MIMIR_LOG_FORMAT":                    true,
	"MIMIR_REDIS_URL":                     true,
	"MIMIR_SENTRY_DSN":                    true,
}

var recognizedPrefixes = []string{
	"MIMIR_GITHUB_",        // bare URL/BRANCH/..., CODE_*, DOCS_*, numbered REPO_{N}_* (internal/repoconfig)
	"MIMIR_LLM_EMBEDDING_",
	"MIMIR_LLM_CHAT_",
}

// Load reads and validates mimir's configuration from the real process
// environment.
func Load(ctx context.Context) (*Config, error) {
	return load(realEnviron(), realGetenv)
}

// load is Load's environment-injectable core, so tests never touch the
// real process environment (mirrors internal/repoconfig.Load's shape).
func load(environ []string, getenv func(string) string) (*Config, error) {
	if err := checkUnknownKeys(environ); err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAPIKey:           getenv("MIMIR_SERVER_API_KEY"),
		GithubWebhookSecret:    getenv("MIMIR_SERVER_GITHUB_WEBHOOK_SECRET"),
		SupabaseURL:            getenv("MIMIR_SUPABASE_URL"),
		SupabaseServiceRoleKey: getenv("MIMIR_SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseTable:          orDefault(getenv("MIMIR_SUPABASE_TABLE"), "docs"),
		SimilarityThreshold:    orFloatDefault(getenv("MIMIR_SUPABASE_SIMILARITY_THRESHOLD"), 0.2),
		MatchCount:             orIntDefault(getenv("MIMIR_SUPABASE_MATCH_COUNT"), 10),
		BM25MatchCount:         orIntDefault(getenv("MIMIR_SUPABASE_BM25_MATCH_COUNT"), 10),
		HybridSearchEnabled:    orBoolDefault(getenv("MIMIR_SUPABASE_ENABLE_HYBRID_SEARCH"), true),
		ExcludePatterns:        splitCSV(getenv("MIMIR_EXCLUDE_PATTERNS")),
		LogLevel:               orDefault(getenv("MIMIR_LOG_LEVEL"), "info"),
		LogFormat:              orDefault(getenv("MIMIR_LOG_FORMAT"), "json"),
		RedisURL:               getenv("MIMIR_REDIS_URL"),
		SentryDSN:              getenv("MIMIR_SENTRY_DSN"),
	}

	cfg.Embedding = loadProviderConfig(getenv, "MIMIR_LLM_EMBEDDING_")
	base := loadProviderConfig(getenv, "MIMIR_LLM_CHAT_")
	cfg.Chat = ChatProviderConfig{
		ProviderConfig:  base,
		Temperature:     orFloatDefault(getenv("MIMIR_LLM_CHAT_TEMPERATURE"), 0.2),
		MaxOutputTokens: orIntDefault(getenv("MIMIR_LLM_CHAT_MAX_OUTPUT_TOKENS"), 1024),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadProviderConfig(getenv func(string) string, prefix string) ProviderConfig {
	return ProviderConfig{
		Provider:             getenv(prefix + "PROVIDER"),
		Model:                getenv(prefix + "MODEL"),
		APIKey:               getenv(prefix + "API_KEY"),
		BaseURL:              getenv(prefix + "BASE_URL"),
		Dimension:            orIntDefault(getenv(prefix+"DIMENSION"), 1536),
		BatchSize:            orIntDefault(getenv(prefix+"LIMITS_BATCH_SIZE"), 100),
		Concurrency:          orIntDefault(getenv(prefix+"LIMITS_CONCURRENCY"), 5),
		MaxRequestsPerMinute: orIntDefault(getenv(prefix+"LIMITS_MAX_REQUESTS_PER_MINUTE"), 500),
		MaxTokensPerMinute:   orIntDefault(getenv(prefix+"LIMITS_MAX_TOKENS_PER_MINUTE"), 1_000_000),
		Retries:              orIntDefault(getenv(prefix+"LIMITS_RETRIES"), 3),
	}
}

// Validate enforces spec.md §6's required keys and value ranges.
func (c *Config) Validate() error {
	if c.ServerAPIKey == "" {
		return fmt.Errorf("config: MIMIR_SERVER_API_KEY is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("config: MIMIR_SUPABASE_URL is required")
	}
	if c.SupabaseServiceRoleKey == "" {
		return fmt.Errorf("config: MIMIR_SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("config: MIMIR_SUPABASE_SIMILARITY_THRESHOLD must be between 0 and 1: %v", c.SimilarityThreshold)
	}
	if c.MatchCount < 1 {
		return fmt.Errorf("config: MIMIR_SUPABASE_MATCH_COUNT must be positive: %d", c.MatchCount)
	}
	return nil
}

// checkUnknownKeys rejects any MIMIR_ prefixed environment variable this
// package doesn't recognize, per spec.md §9's "unknown keys are rejected
// at load time" rule for dynamic config objects.
func checkUnknownKeys(environ []string) error {
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "MIMIR_") {
			continue
		}
		if recognizedExact[key] {
			continue
		}
		recognized := false
		for _, p := range recognizedPrefixes {
			if strings.HasPrefix(key, p) {
				recognized = true
				break
			}
		}
		if !recognized {
			return fmt.Errorf("config: unrecognized environment variable %s", key)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func orFloatDefault(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func orBoolDefault(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
