package failrag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Engine.
type Option interface {
	apply(*engineConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*engineConfig)

func (f optionFunc) apply(c *engineConfig) { f(c) }

// ProviderOptions configures one embedding provider.
type ProviderOptions struct {
	APIKey string
	// BaseURL overrides the public endpoint (proxies, compatible gateways).
	BaseURL string
	Model   string
	// Dimensions defaults to the provider's fixed dimension (1536 openai, 3072 gemini).
	Dimensions int
	Timeout    time.Duration
	// ModelPrefixes overrides the chat model prefixes that select this provider.
	ModelPrefixes []string
}

type engineConfig struct {
	snapshotPath string
	watch        bool

	providers map[ProviderID]ProviderOptions

	defaultModel func() string
	threshold    *float64
	maxResults   int
	timeout      time.Duration

	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithSnapshot sets the corpus snapshot file. Required.
func WithSnapshot(path string) Option {
	return optionFunc(func(c *engineConfig) {
		c.snapshotPath = path
	})
}

// WithWatch reloads the snapshot whenever its file is replaced.
func WithWatch() Option {
	return optionFunc(func(c *engineConfig) {
		c.watch = true
	})
}

// WithProvider registers an embedding provider.
func WithProvider(id ProviderID, opts ProviderOptions) Option {
	return optionFunc(func(c *engineConfig) {
		if c.providers == nil {
			c.providers = make(map[ProviderID]ProviderOptions)
		}
		c.providers[id] = opts
	})
}

// WithOpenAI registers the OpenAI provider with default settings.
func WithOpenAI(apiKey string) Option {
	return WithProvider(ProviderOpenAI, ProviderOptions{APIKey: apiKey})
}

// WithGemini registers the Gemini provider with default settings.
func WithGemini(apiKey string) Option {
	return WithProvider(ProviderGemini, ProviderOptions{APIKey: apiKey})
}

// WithDefaultModel sets the chat model used to pick a provider.
func WithDefaultModel(model string) Option {
	return optionFunc(func(c *engineConfig) {
		c.defaultModel = func() string { return model }
	})
}

// WithDefaultModelFunc reads the chat model on every request, so setting changes apply immediately.
func WithDefaultModelFunc(fn func() string) Option {
	return optionFunc(func(c *engineConfig) {
		c.defaultModel = fn
	})
}

// WithThreshold sets the minimum cosine similarity of a hit. Default: 0.7.
func WithThreshold(t float64) Option {
	return optionFunc(func(c *engineConfig) {
		c.threshold = &t
	})
}

// WithMaxResults caps the number of rendered hits. Default: 3.
func WithMaxResults(n int) Option {
	return optionFunc(func(c *engineConfig) {
		c.maxResults = n
	})
}

// WithTimeout bounds query embedding per request. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.timeout = d
	})
}

// WithRedisCache caches query embeddings in Redis. ttl defaults to 5 minutes.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
		c.cacheTTL = ttl
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *engineConfig) {
		c.logger = l
	})
}

// WithPrometheus registers Engine metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *engineConfig) {
		c.metricsReg = reg
	})
}
