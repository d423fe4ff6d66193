package digest

import (
	"fmt"
	"sort"
	"strings"
)

const hourMs = 3600 * 1000

// FormatTimestamp renders ms as zero-padded MM:SS, or HH:MM:SS when long is set.
func FormatTimestamp(ms int64, long bool) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	if long {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// Assemble orders results by chunk index and attaches each chunk's time range.
// All chapters share one timestamp format, chosen from the last chunk's end.
func Assemble(chunks []Chunk, results []ChunkResult) []Chapter {
	if len(chunks) == 0 {
		return nil
	}

	byIndex := make(map[int]Chunk, len(chunks))
	var lastEnd int64
	for _, c := range chunks {
		byIndex[c.Index] = c
		lastEnd = max(lastEnd, c.EndMs)
	}
	long := lastEnd >= hourMs

	sorted := make([]ChunkResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	chapters := make([]Chapter, 0, len(sorted))
	for _, r := range sorted {
		c, ok := byIndex[r.Index]
		if !ok {
			continue
		}
		chapters = append(chapters, Chapter{
			Number:   r.Index + 1,
			StartMs:  c.StartMs,
			EndMs:    c.EndMs,
			Start:    FormatTimestamp(c.StartMs, long),
			End:      FormatTimestamp(c.EndMs, long),
			Text:     r.Text,
			Fallback: r.IsFallback,
		})
	}
	return chapters
}

// Heading renders the chapter as "Chapter n [start–end]: text".
func (c Chapter) Heading() string {
	return fmt.Sprintf("Chapter %d [%s–%s]: %s", c.Number, c.Start, c.End, c.Text)
}

// RenderSummary joins chapter headings, separated by blank lines.
func RenderSummary(chapters []Chapter) string {
	lines := make([]string, len(chapters))
	for i, c := range chapters {
		lines[i] = c.Heading()
	}
	return strings.Join(lines, "\n\n")
}
