package digest

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"video-digest/internal/textgen"
)

// DefaultConcurrency bounds simultaneous generation calls per pipeline run.
const DefaultConcurrency = 3

// ProgressFunc is called once per settled chunk, in completion order.
type ProgressFunc func(done, total int, res ChunkResult)

// Pool summarizes chunks with a bounded number of concurrent generation calls.
type Pool struct {
	gen               textgen.Generator
	retrier           Retrier
	concurrency       int
	fallbackSentences int
	log               *slog.Logger
}

// NewPool returns a Pool. concurrency <= 0 uses DefaultConcurrency and
// fallbackSentences <= 0 uses DefaultFallbackSentences.
func NewPool(gen textgen.Generator, retrier Retrier, concurrency, fallbackSentences int, log *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if fallbackSentences <= 0 {
		fallbackSentences = DefaultFallbackSentences
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		gen:               gen,
		retrier:           retrier,
		concurrency:       concurrency,
		fallbackSentences: fallbackSentences,
		log:               log,
	}
}

// Run returns exactly one result per chunk, ordered by chunk index.
//
// Chunks that cannot be admitted because ctx is done get their fallback
// immediately. Run returns once every chunk has settled.
func (p *Pool) Run(ctx context.Context, chunks []Chunk, progress ProgressFunc) []ChunkResult {
	total := len(chunks)
	if total == 0 {
		return nil
	}

	gate := semaphore.NewWeighted(int64(p.concurrency))
	results := make(chan ChunkResult, total)

	go func() {
		for _, c := range chunks {
			if err := gate.Acquire(ctx, 1); err != nil {
				results <- p.fallback(c)
				continue
			}
			go func(c Chunk) {
				defer gate.Release(1)
				results <- p.summarize(ctx, c, total)
			}(c)
		}
	}()

	pos := make(map[int]int, total)
	for i, c := range chunks {
		pos[c.Index] = i
	}
	out := make([]ChunkResult, total)
	for done := 1; done <= total; done++ {
		res := <-results
		out[pos[res.Index]] = res
		if progress != nil {
			progress(done, total, res)
		}
	}
	return out
}

func (p *Pool) summarize(ctx context.Context, c Chunk, total int) ChunkResult {
	req := textgen.Request{
		Text:    c.Text(),
		StartMs: c.StartMs,
		EndMs:   c.EndMs,
		Index:   c.Index,
		Total:   total,
	}
	outcome := p.retrier.Do(ctx,
		func(ctx context.Context) (string, error) {
			return p.gen.Generate(ctx, req)
		},
		func() string {
			return ExtractiveSummary(req.Text, p.fallbackSentences)
		},
	)

	if outcome.Fallback {
		p.log.Warn("chunk summary fell back to extract",
			slog.Int("chunk", c.Index),
			slog.Int("attempts", outcome.Attempts),
			slog.Bool("rate_limited", outcome.AllRateLimited),
			slog.Any("error", outcome.Err))
	} else if outcome.Attempts > 1 {
		p.log.Warn("chunk summarized after retry",
			slog.Int("chunk", c.Index),
			slog.Int("attempts", outcome.Attempts))
	}

	return ChunkResult{
		Index:       c.Index,
		Text:        outcome.Text,
		IsFallback:  outcome.Fallback,
		Attempts:    outcome.Attempts,
		RateLimited: outcome.AllRateLimited,
	}
}

func (p *Pool) fallback(c Chunk) ChunkResult {
	return ChunkResult{
		Index:      c.Index,
		Text:       ExtractiveSummary(c.Text(), p.fallbackSentences),
		IsFallback: true,
	}
}
