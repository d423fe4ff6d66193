package digest

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultTargetChunkDuration = 5 * time.Minute
	DefaultMinChunks           = 3
	DefaultMaxChunks           = 10
)

// Segmenter splits a fragment sequence into sentence-aligned chunks whose
// count adapts to the total duration.
type Segmenter struct {
	TargetChunkDuration time.Duration
	MinChunks           int
	MaxChunks           int
}

func (s Segmenter) withDefaults() Segmenter {
	if s.TargetChunkDuration <= 0 {
		s.TargetChunkDuration = DefaultTargetChunkDuration
	}
	if s.MinChunks <= 0 {
		s.MinChunks = DefaultMinChunks
	}
	if s.MaxChunks < s.MinChunks {
		s.MaxChunks = max(DefaultMaxChunks, s.MinChunks)
	}
	return s
}

// ChunkCount returns how many chunks Split produces for frags.
func (s Segmenter) ChunkCount(frags []Fragment) int {
	s = s.withDefaults()
	n := len(frags)
	if n == 0 {
		return 0
	}
	total := totalDuration(frags)
	if total <= 0 {
		return 1
	}
	if n < s.MinChunks {
		return n
	}
	k := int(total / s.TargetChunkDuration.Milliseconds())
	k = min(max(k, s.MinChunks), s.MaxChunks)
	return min(k, n)
}

// Split partitions frags into chunks. Every fragment lands in exactly one
// chunk, in order, and no chunk is empty.
//
// Cuts are planned at multiples of span/count along the caption timeline. At
// each planned cut the window back to the previous cut is searched for the
// last fragment ending a sentence and the chunk closes there; with no such
// fragment the chunk closes at the planned point. A fragment whose own
// duration reaches the per-chunk target is kept in a chunk of its own.
//
// Rolling captions overlap in time, so each chunk's EndMs is clamped to the
// next chunk's StartMs.
func (s Segmenter) Split(frags []Fragment) []Chunk {
	n := len(frags)
	k := s.ChunkCount(frags)
	switch {
	case k == 0:
		return nil
	case k == 1:
		return []Chunk{newChunk(0, frags)}
	case k == n:
		chunks := make([]Chunk, n)
		for i := range frags {
			chunks[i] = newChunk(i, frags[i:i+1])
		}
		return clampEnds(chunks)
	}

	origin := frags[0].StartMs
	target := max(totalDuration(frags)/int64(k), 1)
	chunks := make([]Chunk, 0, k)
	start := 0
	var reach int64

	for i := 0; i < n && len(chunks) < k-1; i++ {
		d := frags[i].DurationMs
		if d >= target && i > start {
			chunks = append(chunks, newChunk(len(chunks), frags[start:i]))
			start = i
			if len(chunks) == k-1 {
				break
			}
		}
		reach = max(reach, frags[i].EndMs()-origin)

		for start <= i && len(chunks) < k-1 {
			c := len(chunks)
			// Chunk c may not extend past lastEnd, so every later chunk
			// keeps at least one fragment.
			lastEnd := n - k + c
			alone := start == i && d >= target
			if !alone && reach < int64(c+1)*target && i < lastEnd {
				break
			}
			cut := i
			if !alone {
				cut = lastSentenceEnd(frags, start, i)
			}
			chunks = append(chunks, newChunk(c, frags[start:cut+1]))
			start = cut + 1
		}
	}

	chunks = append(chunks, newChunk(len(chunks), frags[start:]))
	return clampEnds(chunks)
}

func clampEnds(chunks []Chunk) []Chunk {
	for i := 0; i < len(chunks)-1; i++ {
		c := &chunks[i]
		c.EndMs = max(min(c.EndMs, chunks[i+1].StartMs), c.StartMs)
	}
	return chunks
}

// lastSentenceEnd returns the highest index in [from, to] whose fragment ends
// a sentence, or to when there is none.
func lastSentenceEnd(frags []Fragment, from, to int) int {
	for j := to; j >= from; j-- {
		if endsSentence(frags[j].Text) {
			return j
		}
	}
	return to
}

const closers = `"'”’)]}»`

func endsSentence(text string) bool {
	text = strings.TrimRight(strings.TrimSpace(text), closers)
	r, _ := utf8.DecodeLastRuneInString(text)
	return r == '.' || r == '!' || r == '?'
}

func newChunk(index int, frags []Fragment) Chunk {
	c := Chunk{
		Index:     index,
		Fragments: frags,
		StartMs:   frags[0].StartMs,
	}
	for _, f := range frags {
		c.EndMs = max(c.EndMs, f.EndMs())
	}
	c.EndMs = max(c.EndMs, c.StartMs)
	return c
}

// totalDuration is the span from the first fragment's start to the latest
// fragment end.
func totalDuration(frags []Fragment) int64 {
	if len(frags) == 0 {
		return 0
	}
	var end int64
	for _, f := range frags {
		end = max(end, f.EndMs())
	}
	return max(end-frags[0].StartMs, 0)
}
