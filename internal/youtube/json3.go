package youtube

import (
	"encoding/json"
	"fmt"

	"video-digest/internal/digest"
)

type json3Seg struct {
	UTF8 string `json:"utf8"`
}

type json3Event struct {
	TStartMs    int64      `json:"tStartMs"`
	DDurationMs int64      `json:"dDurationMs"`
	Segs        []json3Seg `json:"segs"`
}

type json3Doc struct {
	Events []json3Event `json:"events"`
}

// ParseJSON3 converts a YouTube json3 caption track into raw fragments.
// Events without text runs (window and style events) are skipped.
func ParseJSON3(data []byte) ([]digest.RawFragment, error) {
	var track json3Doc
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, fmt.Errorf("parse json3: %w", err)
	}

	out := make([]digest.RawFragment, 0, len(track.Events))
	for _, ev := range track.Events {
		if len(ev.Segs) == 0 {
			continue
		}
		segs := make([]string, len(ev.Segs))
		for i, s := range ev.Segs {
			segs[i] = s.UTF8
		}
		out = append(out, digest.RawFragment{
			Segments:   segs,
			StartMs:    ev.TStartMs,
			DurationMs: ev.DDurationMs,
		})
	}
	return out, nil
}
