// Package app assembles the digest service from Settings. It is shared by the
// HTTP server and the command line tool.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"video-digest/internal/digest"
	"video-digest/internal/platform/config"
	"video-digest/internal/platform/metrics"
	"video-digest/internal/textgen"
	"video-digest/internal/youtube"
)

// App holds the wired service and the resources that must be released.
type App struct {
	Service *digest.Service
	Cache   *digest.Cache
	Metrics *metrics.Metrics

	closers []func()
}

// Option adjusts wiring before the service is built.
type Option func(*buildOptions)

type buildOptions struct {
	generator textgen.Generator
	metrics   *metrics.Metrics
	captions  *youtube.Client
}

// WithGenerator skips provider construction and uses g instead.
func WithGenerator(g textgen.Generator) Option {
	return func(o *buildOptions) { o.generator = g }
}

// WithMetrics records pipeline metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *buildOptions) { o.metrics = m }
}

// WithCaptions replaces the yt-dlp backed caption client.
func WithCaptions(c *youtube.Client) Option {
	return func(o *buildOptions) { o.captions = c }
}

// New builds an App. The caller must call Close when done.
func New(ctx context.Context, s *config.Settings, log *slog.Logger, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	a := &App{Metrics: bo.metrics}

	gen := bo.generator
	if gen == nil {
		var err error
		gen, err = NewGenerator(ctx, s.Generation)
		if err != nil {
			return nil, err
		}
	}

	cache, err := a.newCache(ctx, s.Cache, log)
	if err != nil {
		return nil, err
	}
	a.Cache = cache

	scorer, err := digest.ScorerByName(s.Pipeline.KeyPointScorer)
	if err != nil {
		a.Close()
		return nil, err
	}

	captions := bo.captions
	if captions == nil {
		captions = youtube.NewClient(youtube.Options{
			YtDlpPath:    s.Captions.YtDlpPath,
			Languages:    s.Captions.Languages,
			FetchTimeout: s.Captions.FetchTimeout,
			ProbeTimeout: s.Captions.ProbeTimeout,
			MaxBytes:     s.Captions.MaxBytes,
			Logger:       log.With(slog.String("component", "youtube")),
		})
	}

	a.Service = digest.NewService(digest.Deps{
		Captions:  captions,
		Metadata:  captions,
		Generator: gen,
		Cache:     cache,
		Logger:    log,
		Metrics:   bo.metrics,
	}, PipelineConfig(s.Pipeline, scorer))

	log.Info("digest service ready",
		slog.String("provider", s.Generation.Provider),
		slog.String("cache_backend", s.Cache.Backend),
		slog.Int("concurrency", s.Pipeline.Concurrency),
	)
	return a, nil
}

// Close releases the cache backend.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) newCache(ctx context.Context, s config.CacheSettings, log *slog.Logger) (*digest.Cache, error) {
	switch s.Backend {
	case "postgres":
		store, err := digest.NewPostgresStore(ctx, s.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		log.Info("using postgres cache backend")
		return digest.NewCacheWithStore(store, s.ResultTTL, s.UsageTTL), nil
	default:
		return digest.NewCache(s.ResultTTL, s.UsageTTL), nil
	}
}

// PipelineConfig maps pipeline settings onto the service configuration.
func PipelineConfig(p config.PipelineSettings, scorer digest.Scorer) digest.Config {
	return digest.Config{
		Segmenter: digest.Segmenter{
			TargetChunkDuration: p.TargetChunkDuration,
			MinChunks:           p.MinChunks,
			MaxChunks:           p.MaxChunks,
		},
		Retrier: digest.Retrier{
			MaxAttempts:    p.MaxRetries,
			Backoff:        digest.ExponentialBackoff(p.RetryBaseDelay),
			AttemptTimeout: p.AttemptTimeout,
		},
		Concurrency:         p.Concurrency,
		FallbackSentences:   p.FallbackSentences,
		MaxTranscriptLength: p.MaxTranscriptLength,
		PipelineTimeout:     p.Timeout,
		MetadataTimeout:     p.MetadataTimeout,
		KeyPoints:           p.KeyPoints,
		Scorer:              scorer,
	}
}

// NewGenerator creates the configured text generation backend. The API key
// falls back to the provider specific environment variable.
func NewGenerator(ctx context.Context, g config.GenerationSettings) (textgen.Generator, error) {
	provider := textgen.Provider(g.Provider)
	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = config.GetEnv(APIKeyEnv(provider), "")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required: set LLM_API_KEY or %s", provider, APIKeyEnv(provider))
	}

	gen, err := textgen.Factory(ctx, provider, apiKey, textgen.Options{
		Model:    g.Model,
		Prompt:   g.Prompt,
		MinWords: g.MinWords,
		MaxWords: g.MaxWords,
	})
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	return gen, nil
}

// APIKeyEnv names the conventional API key variable for a provider.
func APIKeyEnv(p textgen.Provider) string {
	switch p {
	case textgen.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case textgen.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}
