package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"video-digest/internal/digest"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", want: "dQw4w9WgXcQ"},
		{ref: "https://m.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://youtu.be/dQw4w9WgXcQ?si=abc", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube.com/live/dQw4w9WgXcQ?feature=shared", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "  dQw4w9WgXcQ ", want: "dQw4w9WgXcQ"},
		{ref: "", wantErr: true},
		{ref: "https://vimeo.com/12345", wantErr: true},
		{ref: "https://www.youtube.com/watch?v=short", wantErr: true},
		{ref: "https://www.youtube.com/channel/UC123", wantErr: true},
		{ref: "not a url at all", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ExtractID(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidID) {
					t.Errorf("expected ErrInvalidID, got %q, %v", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ExtractID(%q) = %q, %v; want %q", tt.ref, got, err, tt.want)
			}
		})
	}
}

func TestParseJSON3(t *testing.T) {
	data := []byte(`{"wireMagic":"pb3","events":[
		{"tStartMs":0,"dDurationMs":5000,"id":1,"wpWinPosId":1},
		{"tStartMs":120,"dDurationMs":2400,"segs":[{"utf8":"Hello"},{"utf8":" there","tOffsetMs":400}]},
		{"tStartMs":2520,"dDurationMs":10,"aAppend":1,"segs":[{"utf8":"\n"}]},
		{"tStartMs":2600,"segs":[{"utf8":"General Kenobi."}]}
	]}`)

	got, err := ParseJSON3(data)
	if err != nil {
		t.Fatalf("ParseJSON3: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 text events, got %d", len(got))
	}
	if strings.Join(got[0].Segments, "") != "Hello there" || got[0].StartMs != 120 || got[0].DurationMs != 2400 {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[2].DurationMs != 0 {
		t.Errorf("missing duration should be 0, got %d", got[2].DurationMs)
	}

	frags, err := digest.Normalize(got, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(frags) != 2 || frags[0].Text != "Hello there" {
		t.Errorf("normalized = %+v", frags)
	}

	if _, err := ParseJSON3([]byte("<transcript/>")); err == nil {
		t.Error("expected error for non-JSON track")
	}
}

type fakeExecutor struct {
	out   string
	err   error
	delay time.Duration
	calls int32
	args  []string
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.args = append([]string{name}, args...)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.out, f.err
}

func ytdlpJSON(t *testing.T, info videoInfo) string {
	t.Helper()
	b, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	return "WARNING: falling back to generic extractor\n" + string(b) + "\n"
}

func newCaptionServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Query().Get("lang") == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[
			{"tStartMs":0,"dDurationMs":2000,"segs":[{"utf8":"Welcome back &amp; hello."}]},
			{"tStartMs":2000,"dDurationMs":2000,"segs":[{"utf8":"Today we bake."}]}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchCaptions(t *testing.T) {
	srv := newCaptionServer(t, nil)
	exec := &fakeExecutor{out: ytdlpJSON(t, videoInfo{
		ID: "dQw4w9WgXcQ",
		Subtitles: map[string][]trackItem{
			"de": {{Ext: "json3", URL: srv.URL + "?lang=de"}},
		},
		AutomaticCaptions: map[string][]trackItem{
			"en-orig": {{Ext: "vtt", URL: srv.URL + "?lang=vtt"}, {Ext: "json3", URL: srv.URL + "?lang=en-orig"}},
		},
	})}
	c := NewClient(Options{Executor: exec, Languages: []string{"en"}})

	raw, err := c.FetchCaptions(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchCaptions: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(raw))
	}
	if exec.args[0] != "yt-dlp" || exec.args[len(exec.args)-1] != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("unexpected command %v", exec.args)
	}
}

func TestClient_selectTrack(t *testing.T) {
	json3 := func(u string) []trackItem { return []trackItem{{Ext: "json3", URL: u}} }

	tests := []struct {
		name   string
		langs  []string
		info   videoInfo
		want   string
		wantOK bool
	}{
		{
			name:   "manual preferred language",
			langs:  []string{"en"},
			info:   videoInfo{Subtitles: map[string][]trackItem{"en": json3("m-en")}, AutomaticCaptions: map[string][]trackItem{"en-orig": json3("a-en")}},
			want:   "m-en",
			wantOK: true,
		},
		{
			name:   "regional manual variant",
			langs:  []string{"en"},
			info:   videoInfo{Subtitles: map[string][]trackItem{"en-GB": json3("m-en-gb")}},
			want:   "m-en-gb",
			wantOK: true,
		},
		{
			name:   "automatic original before other manual languages",
			langs:  []string{"en"},
			info:   videoInfo{Subtitles: map[string][]trackItem{"fr": json3("m-fr")}, AutomaticCaptions: map[string][]trackItem{"en-orig": json3("a-en")}},
			want:   "a-en",
			wantOK: true,
		},
		{
			name:   "falls back to any manual track",
			langs:  []string{"en"},
			info:   videoInfo{Subtitles: map[string][]trackItem{"fr": json3("m-fr")}},
			want:   "m-fr",
			wantOK: true,
		},
		{
			name:   "falls back to automatic original",
			langs:  []string{"en"},
			info:   videoInfo{AutomaticCaptions: map[string][]trackItem{"es": json3("a-es-translated"), "ja-orig": json3("a-ja")}},
			want:   "a-ja",
			wantOK: true,
		},
		{
			name:  "no json3 tracks",
			langs: []string{"en"},
			info:  videoInfo{Subtitles: map[string][]trackItem{"en": {{Ext: "vtt", URL: "x"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(Options{Languages: tt.langs, Executor: &fakeExecutor{}})
			got, _, ok := c.selectTrack(&tt.info)
			if ok != tt.wantOK || got.URL != tt.want {
				t.Errorf("selectTrack = %q, %v; want %q, %v", got.URL, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClient_FetchCaptions_no_track(t *testing.T) {
	c := NewClient(Options{Executor: &fakeExecutor{out: ytdlpJSON(t, videoInfo{ID: "dQw4w9WgXcQ"})}})

	raw, err := c.FetchCaptions(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchCaptions: %v", err)
	}
	if _, err := digest.Normalize(raw, 0); !errors.Is(err, digest.ErrEmptyTranscript) {
		t.Errorf("expected empty transcript, got %v", err)
	}
}

func TestClient_FetchCaptions_errors(t *testing.T) {
	srv := newCaptionServer(t, nil)

	tests := []struct {
		name string
		exec *fakeExecutor
		opts Options
	}{
		{
			name: "yt-dlp fails",
			exec: &fakeExecutor{err: errors.New("command 'yt-dlp' failed: exit status 1")},
		},
		{
			name: "yt-dlp prints no JSON",
			exec: &fakeExecutor{out: "ERROR: Video unavailable\n"},
		},
		{
			name: "track download 404",
			exec: &fakeExecutor{out: ytdlpJSON(t, videoInfo{Subtitles: map[string][]trackItem{"en": {{Ext: "json3", URL: srv.URL + "?lang=missing"}}}})},
		},
		{
			name: "track larger than limit",
			exec: &fakeExecutor{out: ytdlpJSON(t, videoInfo{Subtitles: map[string][]trackItem{"en": {{Ext: "json3", URL: srv.URL + "?lang=en"}}}})},
			opts: Options{MaxBytes: 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Executor = tt.exec
			c := NewClient(opts)
			if _, err := c.FetchCaptions(context.Background(), "dQw4w9WgXcQ"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClient_FetchMetadata(t *testing.T) {
	c := NewClient(Options{Executor: &fakeExecutor{out: ytdlpJSON(t, videoInfo{
		ID:          "dQw4w9WgXcQ",
		Title:       "Sourdough basics",
		Description: "Flour, water, salt.",
		Uploader:    "Bakery",
		UploadDate:  "20240315",
		Duration:    754.6,
	})}})

	meta, err := c.FetchMetadata(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	want := digest.Metadata{Title: "Sourdough basics", Description: "Flour, water, salt.", Uploader: "Bakery", PublishDate: "2024-03-15", DurationSec: 754}
	if *meta != want {
		t.Errorf("metadata = %+v, want %+v", *meta, want)
	}

	c = NewClient(Options{Executor: &fakeExecutor{out: ytdlpJSON(t, videoInfo{Timestamp: 1700000000})}})
	meta, _ = c.FetchMetadata(context.Background(), "dQw4w9WgXcQ")
	if meta.PublishDate != "2023-11-14" {
		t.Errorf("timestamp fallback publish date = %q", meta.PublishDate)
	}
}

func TestClient_probe_shared_between_callers(t *testing.T) {
	var hits int32
	srv := newCaptionServer(t, &hits)
	exec := &fakeExecutor{
		delay: 50 * time.Millisecond,
		out:   ytdlpJSON(t, videoInfo{Title: "x", Subtitles: map[string][]trackItem{"en": {{Ext: "json3", URL: srv.URL}}}}),
	}
	c := NewClient(Options{Executor: exec})

	done := make(chan error, 2)
	go func() {
		_, err := c.FetchMetadata(context.Background(), "dQw4w9WgXcQ")
		done <- err
	}()
	go func() {
		_, err := c.FetchCaptions(context.Background(), "dQw4w9WgXcQ")
		done <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent call failed: %v", err)
		}
	}
	if n := atomic.LoadInt32(&exec.calls); n != 1 {
		t.Errorf("expected one yt-dlp run for concurrent callers, got %d", n)
	}
}

func TestClient_probe_respects_caller_deadline(t *testing.T) {
	c := NewClient(Options{Executor: &fakeExecutor{delay: time.Second, out: "{}"}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchCaptions(ctx, "dQw4w9WgXcQ")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
