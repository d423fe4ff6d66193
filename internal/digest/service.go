package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"video-digest/internal/platform/metrics"
	"video-digest/internal/textgen"
)

const (
	DefaultPipelineTimeout = 120 * time.Second
	DefaultMetadataTimeout = 15 * time.Second

	// TopUsageLimit is the number of entries reported by TopUsage.
	TopUsageLimit = 10
)

// CaptionProvider resolves a video reference and supplies its caption stream.
type CaptionProvider interface {
	// ResolveID extracts the video id from a URL or bare id.
	ResolveID(ref string) (string, error)
	// FetchCaptions returns the raw caption events in time order. An empty
	// slice with a nil error means the video has no captions.
	FetchCaptions(ctx context.Context, id string) ([]RawFragment, error)
}

// MetadataProvider supplies optional descriptive information about a video.
type MetadataProvider interface {
	FetchMetadata(ctx context.Context, id string) (*Metadata, error)
}

// Config holds the pipeline tuning knobs.
type Config struct {
	Segmenter           Segmenter
	Retrier             Retrier
	Concurrency         int
	FallbackSentences   int
	MaxTranscriptLength int
	PipelineTimeout     time.Duration
	MetadataTimeout     time.Duration
	KeyPoints           int // 0 disables key points
	Scorer              Scorer
}

// Deps are the collaborators of a Service. Metadata, Cache and Metrics may be nil.
type Deps struct {
	Captions  CaptionProvider
	Metadata  MetadataProvider
	Generator textgen.Generator
	Cache     *Cache
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Service runs the caption summarization pipeline.
type Service struct {
	captions CaptionProvider
	metadata MetadataProvider
	cache    *Cache
	pool     *Pool
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewService returns a Service. Zero config values use the package defaults.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = DefaultPipelineTimeout
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}
	if cfg.MaxTranscriptLength <= 0 {
		cfg.MaxTranscriptLength = DefaultMaxTranscriptLength
	}
	if cfg.Scorer == nil {
		cfg.Scorer = TermFrequency{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		captions: deps.Captions,
		metadata: deps.Metadata,
		cache:    deps.Cache,
		pool:     NewPool(deps.Generator, cfg.Retrier, cfg.Concurrency, cfg.FallbackSentences, log),
		cfg:      cfg,
		log:      log,
		metrics:  deps.Metrics,
	}
}

type summarizeOptions struct {
	progress ProgressFunc
}

// Option customizes a single Summarize call.
type Option func(*summarizeOptions)

// WithProgress reports each settled chunk while the pipeline runs.
func WithProgress(fn ProgressFunc) Option {
	return func(o *summarizeOptions) { o.progress = fn }
}

// Summarize returns the chaptered summary for ref, from the cache when possible.
// Errors are *Error values.
func (s *Service) Summarize(ctx context.Context, ref string, opts ...Option) (*Summary, error) {
	var o summarizeOptions
	for _, opt := range opts {
		opt(&o)
	}

	id, err := s.captions.ResolveID(ref)
	if err != nil {
		return nil, NewError(KindInvalidIdentifier, "could not find a video id in the given reference", err)
	}

	if cached := s.cached(ctx, id); cached != nil {
		return cached, nil
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	meta := s.startMetadata(pctx, id)

	frags, err := s.transcript(ctx, pctx, id)
	if err != nil {
		return nil, err
	}

	chunks := s.cfg.Segmenter.Split(frags)
	s.log.Info("transcript segmented",
		slog.String("video_id", id),
		slog.Int("fragments", len(frags)),
		slog.Int("chunks", len(chunks)))

	results := s.pool.Run(pctx, chunks, o.progress)

	var attempts, fallbacks int
	allRateLimited := true
	for _, r := range results {
		attempts += r.Attempts
		if r.IsFallback {
			fallbacks++
		}
		if !r.RateLimited {
			allRateLimited = false
		}
	}
	if s.metrics != nil {
		s.metrics.AddAttempts(attempts)
		s.metrics.AddChunks(len(results)-fallbacks, fallbacks)
	}
	if allRateLimited {
		return nil, NewError(KindRateLimit, "summarization service is rate limited, try again later", textgen.ErrRateLimited)
	}
	if ctx.Err() != nil {
		return nil, NewError(KindInternal, "request cancelled", ctx.Err())
	}
	deadlineHit := pctx.Err() != nil

	chapters := Assemble(chunks, results)
	texts := make([]string, len(chapters))
	for i, c := range chapters {
		texts[i] = c.Text
	}

	summary := &Summary{
		VideoID:    id,
		Transcript: TranscriptText(frags),
		Summary:    RenderSummary(chapters),
		Chapters:   chapters,
		KeyPoints:  KeyPoints(texts, s.cfg.KeyPoints, s.cfg.Scorer),
		Metadata:   s.awaitMetadata(pctx, meta),
		Message:    resultMessage(len(chapters), fallbacks, deadlineHit),
		Timestamp:  time.Now().UTC(),
	}

	// Runs cut short by the deadline or served entirely from fallbacks are
	// not cached so the next request can do better.
	if s.cache != nil && !deadlineHit && fallbacks < len(chapters) {
		if err := s.cache.Put(ctx, id, summary); err != nil {
			s.log.Warn("cache put failed", slog.String("video_id", id), slog.String("error", err.Error()))
		}
	}
	s.recordUsage(ctx, id)

	if s.metrics != nil {
		s.metrics.IncSummaries("pipeline")
		s.metrics.ObservePipeline(time.Since(start))
	}
	s.log.Info("summary generated",
		slog.String("video_id", id),
		slog.Int("chapters", len(chapters)),
		slog.Int("fallbacks", fallbacks),
		slog.Int("attempts", attempts),
		slog.Bool("deadline_exceeded", deadlineHit),
		slog.Duration("duration", time.Since(start)))

	return summary, nil
}

// Preview fetches and segments the captions for ref without generating summaries.
func (s *Service) Preview(ctx context.Context, ref string) (string, []Chunk, error) {
	id, err := s.captions.ResolveID(ref)
	if err != nil {
		return "", nil, NewError(KindInvalidIdentifier, "could not find a video id in the given reference", err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	frags, err := s.transcript(ctx, pctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, s.cfg.Segmenter.Split(frags), nil
}

// TopUsage returns the most requested videos.
func (s *Service) TopUsage(ctx context.Context) ([]UsageStat, error) {
	if s.cache == nil {
		return []UsageStat{}, nil
	}
	return s.cache.TopUsage(ctx, TopUsageLimit)
}

// CachedResults returns the number of live cache entries, or 0 without a cache.
func (s *Service) CachedResults(ctx context.Context) int {
	if s.cache == nil {
		return 0
	}
	n, err := s.cache.Len(ctx)
	if err != nil {
		s.log.Warn("count cached results failed", slog.String("error", err.Error()))
		return 0
	}
	return n
}

func (s *Service) cached(ctx context.Context, id string) *Summary {
	if s.cache == nil {
		return nil
	}
	summary, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.Warn("cache get failed", slog.String("video_id", id), slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}

	s.log.Debug("cache hit", slog.String("video_id", id))
	summary.Cached = true
	summary.Message = "Summary retrieved from cache"
	summary.Timestamp = time.Now().UTC()
	s.recordUsage(ctx, id)
	if s.metrics != nil {
		s.metrics.IncSummaries("cache")
	}
	return summary
}

// transcript fetches and normalizes captions. pctx carries the pipeline
// deadline; ctx is the caller's context.
func (s *Service) transcript(ctx, pctx context.Context, id string) ([]Fragment, error) {
	raw, err := s.captions.FetchCaptions(pctx, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyTranscript), errors.Is(err, ErrInvalidIdentifier):
			return nil, err
		case ctx.Err() != nil:
			return nil, NewError(KindInternal, "request cancelled", ctx.Err())
		case errors.Is(err, context.DeadlineExceeded) || pctx.Err() != nil:
			return nil, NewError(KindTimeout, "timed out fetching captions", err)
		default:
			return nil, NewError(KindTranscriptFetch, "could not fetch captions for this video", err)
		}
	}
	return Normalize(raw, s.cfg.MaxTranscriptLength)
}

// startMetadata looks up metadata in the background. The returned channel
// always receives exactly one value.
func (s *Service) startMetadata(ctx context.Context, id string) <-chan *Metadata {
	ch := make(chan *Metadata, 1)
	if s.metadata == nil {
		ch <- nil
		return ch
	}

	go func() {
		mctx, cancel := context.WithTimeout(ctx, s.cfg.MetadataTimeout)
		defer cancel()

		meta, err := s.metadata.FetchMetadata(mctx, id)
		if err != nil || meta == nil {
			if err == nil {
				err = errors.New("no metadata returned")
			}
			s.log.Warn("metadata lookup failed", slog.String("video_id", id), slog.String("error", err.Error()))
			meta = &Metadata{Error: fmt.Sprintf("metadata unavailable: %v", err)}
		}
		ch <- meta
	}()
	return ch
}

// awaitMetadata prefers a result that has already arrived over the deadline.
func (s *Service) awaitMetadata(ctx context.Context, ch <-chan *Metadata) *Metadata {
	select {
	case meta := <-ch:
		return meta
	default:
	}

	select {
	case meta := <-ch:
		return meta
	case <-ctx.Done():
		return &Metadata{Error: "metadata unavailable: lookup did not finish in time"}
	}
}

func (s *Service) recordUsage(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.RecordUsage(ctx, id); err != nil {
		s.log.Warn("record usage failed", slog.String("video_id", id), slog.String("error", err.Error()))
	}
}

func resultMessage(chapters, fallbacks int, deadlineHit bool) string {
	switch {
	case deadlineHit:
		return fmt.Sprintf("Summary incomplete: time budget exceeded, %d of %d chapters use an extract of the transcript", fallbacks, chapters)
	case fallbacks > 0:
		return fmt.Sprintf("Summary generated, %d of %d chapters use an extract of the transcript", fallbacks, chapters)
	default:
		return "Summary generated successfully"
	}
}
