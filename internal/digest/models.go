package digest

import (
	"strings"
	"time"
)

// RawFragment is one caption event as delivered by a CaptionProvider, before
// normalization. Segments are the text runs of the event in order.
type RawFragment struct {
	Segments   []string
	StartMs    int64
	DurationMs int64
}

// Fragment is a normalized, timestamped piece of spoken transcript.
type Fragment struct {
	Text       string `json:"text"`
	StartMs    int64  `json:"startMs"`
	DurationMs int64  `json:"durationMs"`
}

// EndMs returns the offset at which the fragment stops being displayed.
func (f Fragment) EndMs() int64 { return f.StartMs + f.DurationMs }

// Chunk is a contiguous run of fragments summarized by one generation call.
type Chunk struct {
	Index     int        `json:"index"`
	Fragments []Fragment `json:"-"`
	StartMs   int64      `json:"startMs"`
	EndMs     int64      `json:"endMs"`
}

// Text joins the chunk's fragment texts with single spaces.
func (c Chunk) Text() string {
	parts := make([]string, len(c.Fragments))
	for i, f := range c.Fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

// ChunkResult is the summary produced for exactly one Chunk.
type ChunkResult struct {
	Index      int
	Text       string
	IsFallback bool

	Attempts    int  // generation attempts made
	RateLimited bool // every attempt was rejected for quota
}

// Chapter is one rendered section of an assembled summary.
type Chapter struct {
	Number   int    `json:"number"`
	StartMs  int64  `json:"startMs"`
	EndMs    int64  `json:"endMs"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Metadata is optional descriptive information about a video.
// When the metadata lookup fails only Error is set.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	PublishDate string `json:"publishDate,omitempty"`
	DurationSec int64  `json:"durationSec,omitempty"`
	Uploader    string `json:"uploader,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Summary is the assembled result returned to callers and stored in the cache.
type Summary struct {
	VideoID    string    `json:"videoId"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`
	Chapters   []Chapter `json:"chapters"`
	KeyPoints  []string  `json:"keyPoints,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	Cached     bool      `json:"cached"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// UsageStat is the request count recorded for one video.
type UsageStat struct {
	VideoID string `json:"videoId"`
	Count   int64  `json:"count"`
}
