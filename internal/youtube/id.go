// Package youtube resolves YouTube video references and loads their captions
// and metadata through yt-dlp.
package youtube

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalidID = errors.New("not a YouTube video reference")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractID returns the 11 character video id from a watch, short, embed,
// shorts or live URL, or from a bare id.
func ExtractID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidID
	}
	if idPattern.MatchString(ref) {
		return ref, nil
	}

	raw := ref
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")

	var id string
	switch host {
	case "youtu.be":
		id = firstPathPart(u.Path)
	case "youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = firstPathPart(strings.TrimPrefix(u.Path, prefix))
				break
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidID, u.Hostname())
	}

	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidID, ref)
	}
	return id, nil
}

// WatchURL returns the canonical watch URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func firstPathPart(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
