package digest

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestNormalize_empty(t *testing.T) {
	tests := []struct {
		name string
		raw  []RawFragment
	}{
		{"nil", nil},
		{"empty", []RawFragment{}},
		{"whitespace only", []RawFragment{{Segments: []string{" ", "\n"}, StartMs: 0, DurationMs: 1000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, 100)
			if !errors.Is(err, ErrEmptyTranscript) {
				t.Fatalf("expected ErrEmptyTranscript, got %v", err)
			}
			if AsError(err).HTTPStatus() != http.StatusNotFound {
				t.Errorf("expected 404 status")
			}
		})
	}
}

func TestNormalize_flattens_and_decodes(t *testing.T) {
	raw := []RawFragment{
		{Segments: []string{"Tom &amp; Jerry", " &lt;3", "\n"}, StartMs: 0, DurationMs: 1500},
		{Segments: []string{"   "}, StartMs: 1500, DurationMs: 500},
		{Segments: []string{"it&#39;s &quot;fine&quot;", " &foo; a&#x2F;b&nbsp;c"}, StartMs: -20, DurationMs: -5},
	}

	got, err := Normalize(raw, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments after dropping blank, got %d", len(got))
	}
	if got[0].Text != "Tom & Jerry <3" {
		t.Errorf("fragment 0 text = %q", got[0].Text)
	}
	if got[1].Text != `it's "fine" &foo; a/b c` {
		t.Errorf("fragment 1 text = %q", got[1].Text)
	}
	if got[1].StartMs != 0 || got[1].DurationMs != 0 {
		t.Errorf("negative offsets should clamp to 0, got %+v", got[1])
	}
}

func TestDecodeEntities_single_pass(t *testing.T) {
	if got := DecodeEntities("&amp;lt;"); got != "&lt;" {
		t.Errorf("DecodeEntities should not double-decode, got %q", got)
	}
}

func TestNormalize_too_long(t *testing.T) {
	const limit = 50

	atLimit := []RawFragment{{Segments: []string{strings.Repeat("a", limit)}, DurationMs: 1000}}
	if _, err := Normalize(atLimit, limit); err != nil {
		t.Fatalf("transcript at the limit should pass, got %v", err)
	}

	over := []RawFragment{
		{Segments: []string{strings.Repeat("a", 30)}, DurationMs: 1000},
		{Segments: []string{strings.Repeat("é", limit-29)}, StartMs: 1000, DurationMs: 1000},
	}
	_, err := Normalize(over, limit)
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	de := AsError(err)
	if de.Length != limit+1 || de.Limit != limit {
		t.Errorf("length/limit = %d/%d, want %d/%d", de.Length, de.Limit, limit+1, limit)
	}
	if de.HTTPStatus() != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", de.HTTPStatus())
	}
}

func TestTranscriptText(t *testing.T) {
	frags := []Fragment{{Text: "one."}, {Text: "two"}}
	if got := TranscriptText(frags); got != "one. two" {
		t.Errorf("TranscriptText = %q", got)
	}
}
