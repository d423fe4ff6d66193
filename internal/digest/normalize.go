package digest

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxTranscriptLength is the character budget used when none is configured.
const DefaultMaxTranscriptLength = 100000

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&#x27;", "'",
	"&#34;", `"`,
	"&#x2F;", "/",
	"&#47;", "/",
	"&nbsp;", " ",
)

// DecodeEntities replaces the known caption escape sequences with literal
// characters. Unknown sequences are left as they are.
func DecodeEntities(s string) string {
	return entityReplacer.Replace(s)
}

// Normalize flattens raw provider output into ordered fragments.
//
// Text runs are concatenated, escapes decoded and whitespace collapsed.
// Fragments left with no text are dropped. Order is preserved as given.
// It fails with ErrEmptyTranscript when nothing remains and with ErrTooLong
// when the total rune count exceeds maxLength (maxLength <= 0 uses the default).
func Normalize(raw []RawFragment, maxLength int) ([]Fragment, error) {
	if len(raw) == 0 {
		return nil, NewError(KindEmptyTranscript, "no captions available for this video", nil)
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxTranscriptLength
	}

	out := make([]Fragment, 0, len(raw))
	total := 0
	for _, r := range raw {
		text := strings.Join(strings.Fields(DecodeEntities(strings.Join(r.Segments, ""))), " ")
		if text == "" {
			continue
		}
		total += utf8.RuneCountInString(text)
		out = append(out, Fragment{
			Text:       text,
			StartMs:    max(r.StartMs, 0),
			DurationMs: max(r.DurationMs, 0),
		})
	}

	if len(out) == 0 {
		return nil, NewError(KindEmptyTranscript, "captions contain no text", nil)
	}
	if total > maxLength {
		return nil, tooLongError(total, maxLength)
	}
	return out, nil
}

// TranscriptText joins fragment texts into a single transcript string.
func TranscriptText(frags []Fragment) string {
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}
