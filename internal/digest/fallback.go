package digest

import (
	"strings"
	"unicode"
)

// DefaultFallbackSentences is how many leading sentences an extractive fallback keeps.
const DefaultFallbackSentences = 3

// fallbackWordsPerSentence bounds an extract when captions carry no
// punctuation and a "sentence" is the whole segment.
const fallbackWordsPerSentence = 25

const emptySegmentText = "(no captions in this segment)"

// Sentences splits text at '.', '!' or '?' followed by whitespace or the end of
// the text. Closing quotes and brackets stay with their sentence.
func Sentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		end := i + 1
		for end < len(runes) && strings.ContainsRune(closers, runes[end]) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ExtractiveSummary returns the first n sentences of text, cut to
// n*fallbackWordsPerSentence words. It never returns an empty string.
func ExtractiveSummary(text string, n int) string {
	if n <= 0 {
		n = DefaultFallbackSentences
	}
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return emptySegmentText
	}
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return clipWords(strings.Join(sentences, " "), n*fallbackWordsPerSentence)
}

// clipWords keeps the first limit words of s and marks the cut with an ellipsis.
func clipWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ") + "…"
}
