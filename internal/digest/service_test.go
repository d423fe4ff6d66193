package digest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"video-digest/internal/textgen"
)

type fakeCaptions struct {
	raw   []RawFragment
	err   error
	block bool // wait for ctx instead of returning
	calls int32
}

func (f *fakeCaptions) ResolveID(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "not-a-video") {
		return "", errors.New("no video id")
	}
	return ref, nil
}

func (f *fakeCaptions) FetchCaptions(ctx context.Context, id string) ([]RawFragment, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("fetch captions: %w", ctx.Err())
	}
	return f.raw, f.err
}

type fakeMetadata struct {
	meta *Metadata
	err  error
}

func (f fakeMetadata) FetchMetadata(ctx context.Context, id string) (*Metadata, error) {
	return f.meta, f.err
}

type countingGenerator struct {
	calls int32
	fn    func(ctx context.Context, req textgen.Request) (string, error)
}

func (g *countingGenerator) Generate(ctx context.Context, req textgen.Request) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.fn != nil {
		return g.fn(ctx, req)
	}
	return fmt.Sprintf("Summary of part %d.", req.Index+1), nil
}

func (g *countingGenerator) Calls() int { return int(atomic.LoadInt32(&g.calls)) }

// rawTranscript mirrors uniformFragments as provider output.
func rawTranscript(n int, durMs int64, terminalEvery int) []RawFragment {
	frags := uniformFragments(n, durMs, terminalEvery)
	raw := make([]RawFragment, len(frags))
	for i, f := range frags {
		raw[i] = RawFragment{Segments: []string{f.Text}, StartMs: f.StartMs, DurationMs: f.DurationMs}
	}
	return raw
}

func testConfig() Config {
	return Config{
		Retrier:             fastRetrier(3),
		Concurrency:         3,
		MaxTranscriptLength: 100000,
		PipelineTimeout:     5 * time.Second,
		MetadataTimeout:     time.Second,
		KeyPoints:           3,
	}
}

func newTestService(captions CaptionProvider, gen textgen.Generator, cfg Config) (*Service, *Cache) {
	cache := NewCache(time.Hour, 24*time.Hour)
	svc := NewService(Deps{
		Captions:  captions,
		Metadata:  fakeMetadata{meta: &Metadata{Title: "Bread at home"}},
		Generator: gen,
		Cache:     cache,
	}, cfg)
	return svc, cache
}

func TestService_Summarize(t *testing.T) {
	ctx := context.Background()
	captions := &fakeCaptions{raw: rawTranscript(360, 2000, 5)}
	gen := &countingGenerator{}
	svc, _ := newTestService(captions, gen, testConfig())

	got, err := svc.Summarize(ctx, "vid12345678")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.Cached {
		t.Error("first result should not be cached")
	}
	if len(got.Chapters) != 3 || gen.Calls() != 3 {
		t.Fatalf("chapters=%d calls=%d, want 3/3", len(got.Chapters), gen.Calls())
	}
	if !strings.HasPrefix(got.Summary, "Chapter 1 [00:00–04:00]: Summary of part 1.") {
		t.Errorf("summary = %q", got.Summary)
	}
	if !strings.HasPrefix(got.Transcript, "word0 word1 word2 word3 word4.") {
		t.Errorf("transcript = %.40q", got.Transcript)
	}
	if got.Metadata == nil || got.Metadata.Title != "Bread at home" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if len(got.KeyPoints) == 0 || len(got.KeyPoints) > 3 {
		t.Errorf("key points = %q", got.KeyPoints)
	}
	if got.Message != "Summary generated successfully" || got.Timestamp.IsZero() {
		t.Errorf("message=%q timestamp=%v", got.Message, got.Timestamp)
	}

	again, err := svc.Summarize(ctx, "vid12345678")
	if err != nil {
		t.Fatalf("second Summarize: %v", err)
	}
	if !again.Cached || again.Summary != got.Summary {
		t.Errorf("second call should be served from cache: %+v", again)
	}
	if gen.Calls() != 3 || captions.calls != 1 {
		t.Errorf("cache hit should not rerun the pipeline (calls=%d fetches=%d)", gen.Calls(), captions.calls)
	}

	top, _ := svc.TopUsage(ctx)
	if len(top) != 1 || top[0].Count != 2 {
		t.Errorf("usage = %+v, want one entry with count 2", top)
	}
	if n := svc.CachedResults(ctx); n != 1 {
		t.Errorf("CachedResults = %d", n)
	}
}

func TestService_Summarize_errors(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		captions *fakeCaptions
		cfg      func(*Config)
		want     *Error
		status   int
	}{
		{
			name:     "invalid reference",
			ref:      "https://example.com/not-a-video",
			captions: &fakeCaptions{},
			want:     ErrInvalidIdentifier,
			status:   http.StatusBadRequest,
		},
		{
			name:     "empty transcript",
			ref:      "vid",
			captions: &fakeCaptions{raw: []RawFragment{}},
			want:     ErrEmptyTranscript,
			status:   http.StatusNotFound,
		},
		{
			name:     "provider unreachable",
			ref:      "vid",
			captions: &fakeCaptions{err: errors.New("dial tcp: connection refused")},
			want:     ErrTranscriptFetch,
			status:   http.StatusNotFound,
		},
		{
			name:     "transcript one character too long",
			ref:      "vid",
			captions: &fakeCaptions{raw: []RawFragment{{Segments: []string{strings.Repeat("x", 1001)}, DurationMs: 1000}}},
			cfg:      func(c *Config) { c.MaxTranscriptLength = 1000 },
			want:     ErrTooLong,
			status:   http.StatusRequestEntityTooLarge,
		},
		{
			name:     "caption fetch exceeds pipeline deadline",
			ref:      "vid",
			captions: &fakeCaptions{block: true},
			cfg:      func(c *Config) { c.PipelineTimeout = 30 * time.Millisecond },
			want:     ErrTimeout,
			status:   http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			gen := &countingGenerator{}
			svc, _ := newTestService(tt.captions, gen, cfg)

			_, err := svc.Summarize(context.Background(), tt.ref)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want.Kind, err)
			}
			if got := AsError(err).HTTPStatus(); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
			if gen.Calls() != 0 {
				t.Errorf("generator called %d times", gen.Calls())
			}
		})
	}
}

func TestService_Summarize_all_rate_limited(t *testing.T) {
	gen := &countingGenerator{fn: func(ctx context.Context, req textgen.Request) (string, error) {
		return "", fmt.Errorf("openai generate: %w", textgen.ErrRateLimited)
	}}
	svc, cache := newTestService(&fakeCaptions{raw: rawTranscript(360, 2000, 5)}, gen, testConfig())

	_, err := svc.Summarize(context.Background(), "vid")
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if AsError(err).HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("expected 429")
	}
	if gen.Calls() != 9 {
		t.Errorf("expected 3 attempts for each of 3 chunks, got %d", gen.Calls())
	}
	if _, ok, _ := cache.Get(context.Background(), "vid"); ok {
		t.Error("failed run should not be cached")
	}
}

func TestService_Summarize_partial_fallback(t *testing.T) {
	gen := &countingGenerator{fn: func(ctx context.Context, req textgen.Request) (string, error) {
		if req.Index == 1 {
			return "", textgen.ErrRateLimited
		}
		return "Fine.", nil
	}}
	svc, cache := newTestService(&fakeCaptions{raw: rawTranscript(360, 2000, 5)}, gen, testConfig())

	got, err := svc.Summarize(context.Background(), "vid")
	if err != nil {
		t.Fatalf("a single rate-limited chunk must not fail the run: %v", err)
	}
	if !got.Chapters[1].Fallback || got.Chapters[1].Text != "word120 word121 word122 word123 word124. word125 word126 word127 word128 word129. word130 word131 word132 word133 word134." {
		t.Errorf("chapter 2 = %+v", got.Chapters[1])
	}
	if !strings.Contains(got.Message, "1 of 3 chapters") {
		t.Errorf("message = %q", got.Message)
	}
	if _, ok, _ := cache.Get(context.Background(), "vid"); !ok {
		t.Error("partially generated summary should be cached")
	}
}

func TestService_Summarize_pipeline_deadline(t *testing.T) {
	gen := &countingGenerator{fn: func(ctx context.Context, req textgen.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := testConfig()
	cfg.PipelineTimeout = 50 * time.Millisecond
	cfg.Retrier.AttemptTimeout = time.Minute
	svc, cache := newTestService(&fakeCaptions{raw: rawTranscript(360, 2000, 5)}, gen, cfg)

	start := time.Now()
	got, err := svc.Summarize(context.Background(), "vid")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("pipeline ran past its deadline")
	}
	for _, c := range got.Chapters {
		if !c.Fallback || c.Text == "" {
			t.Errorf("chapter %d should carry a fallback, got %+v", c.Number, c)
		}
	}
	if !strings.HasPrefix(got.Message, "Summary incomplete") {
		t.Errorf("message = %q", got.Message)
	}
	if _, ok, _ := cache.Get(context.Background(), "vid"); ok {
		t.Error("deadline-cut summary should not be cached")
	}
}

func TestService_Summarize_metadata_failure_is_not_fatal(t *testing.T) {
	svc := NewService(Deps{
		Captions:  &fakeCaptions{raw: rawTranscript(30, 2000, 5)},
		Metadata:  fakeMetadata{err: errors.New("yt-dlp: video unavailable")},
		Generator: &countingGenerator{},
	}, testConfig())

	got, err := svc.Summarize(context.Background(), "vid")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.Metadata == nil || !strings.Contains(got.Metadata.Error, "video unavailable") || got.Metadata.Title != "" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
}

func TestService_awaitMetadata_prefers_arrived_result(t *testing.T) {
	svc := NewService(Deps{Captions: &fakeCaptions{}}, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		ch := make(chan *Metadata, 1)
		ch <- &Metadata{Title: "Bread at home"}
		if got := svc.awaitMetadata(ctx, ch); got.Title != "Bread at home" {
			t.Fatalf("run %d: arrived metadata replaced by %+v", i, got)
		}
	}

	if got := svc.awaitMetadata(ctx, make(chan *Metadata)); got.Error == "" {
		t.Errorf("expected placeholder when nothing arrived, got %+v", got)
	}
}

func TestService_Summarize_progress(t *testing.T) {
	svc, _ := newTestService(&fakeCaptions{raw: rawTranscript(360, 2000, 5)}, &countingGenerator{}, testConfig())

	var calls int32
	_, err := svc.Summarize(context.Background(), "vid", WithProgress(func(done, total int, res ChunkResult) {
		atomic.AddInt32(&calls, 1)
	}))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if calls != 3 {
		t.Errorf("progress called %d times, want 3", calls)
	}
}

func TestService_Preview(t *testing.T) {
	gen := &countingGenerator{}
	svc, _ := newTestService(&fakeCaptions{raw: rawTranscript(360, 2000, 5)}, gen, testConfig())

	id, chunks, err := svc.Preview(context.Background(), "vid")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if id != "vid" || len(chunks) != 3 {
		t.Errorf("Preview = %q, %d chunks", id, len(chunks))
	}
	if gen.Calls() != 0 {
		t.Error("Preview must not call the generator")
	}
}
