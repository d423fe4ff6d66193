package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"video-digest/internal/digest"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultProbeTimeout = 60 * time.Second
	DefaultMaxBytes     = 10_000_000
	userAgent           = "video-digest/1.0"
)

type trackItem struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

// videoInfo is the subset of `yt-dlp -j` output used here.
type videoInfo struct {
	ID                string                 `json:"id"`
	Title             string                 `json:"title"`
	Description       string                 `json:"description"`
	Uploader          string                 `json:"uploader"`
	UploadDate        string                 `json:"upload_date"`
	Timestamp         int64                  `json:"timestamp"`
	Duration          float64                `json:"duration"`
	Subtitles         map[string][]trackItem `json:"subtitles"`
	AutomaticCaptions map[string][]trackItem `json:"automatic_captions"`
}

type Options struct {
	YtDlpPath    string
	Languages    []string      // preferred caption languages, in order
	FetchTimeout time.Duration // caption track download
	ProbeTimeout time.Duration // one yt-dlp run
	MaxBytes     int64
	Executor     Executor
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client implements digest.CaptionProvider and digest.MetadataProvider.
type Client struct {
	ytdlp        string
	languages    []string
	timeout      time.Duration
	probeTimeout time.Duration
	maxBytes     int64
	exec         Executor
	http         *http.Client
	log          *slog.Logger

	probes singleflight.Group
}

func NewClient(opts Options) *Client {
	c := &Client{
		ytdlp:        opts.YtDlpPath,
		languages:    opts.Languages,
		timeout:      opts.FetchTimeout,
		probeTimeout: opts.ProbeTimeout,
		maxBytes:     opts.MaxBytes,
		exec:         opts.Executor,
		http:         opts.HTTPClient,
		log:          opts.Logger,
	}
	if c.ytdlp == "" {
		c.ytdlp = "yt-dlp"
	}
	if len(c.languages) == 0 {
		c.languages = []string{"en"}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultFetchTimeout
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = DefaultProbeTimeout
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}
	if c.exec == nil {
		c.exec = NewExecutor()
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	return c
}

// ResolveID implements digest.CaptionProvider.
func (c *Client) ResolveID(ref string) (string, error) {
	return ExtractID(ref)
}

// FetchCaptions implements digest.CaptionProvider. A video without a usable
// caption track yields an empty slice and no error.
func (c *Client) FetchCaptions(ctx context.Context, id string) ([]digest.RawFragment, error) {
	info, err := c.probe(ctx, id)
	if err != nil {
		return nil, err
	}

	track, lang, ok := c.selectTrack(info)
	if !ok {
		c.log.Info("no json3 caption track", slog.String("video_id", id))
		return []digest.RawFragment{}, nil
	}
	c.log.Debug("caption track selected", slog.String("video_id", id), slog.String("lang", lang))

	data, err := c.fetch(ctx, track.URL)
	if err != nil {
		return nil, err
	}
	return ParseJSON3(data)
}

// FetchMetadata implements digest.MetadataProvider.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*digest.Metadata, error) {
	info, err := c.probe(ctx, id)
	if err != nil {
		return nil, err
	}

	meta := &digest.Metadata{
		Title:       info.Title,
		Description: info.Description,
		Uploader:    info.Uploader,
		DurationSec: int64(info.Duration),
	}
	if t, err := time.Parse("20060102", info.UploadDate); err == nil {
		meta.PublishDate = t.Format(time.DateOnly)
	} else if info.Timestamp != 0 {
		meta.PublishDate = time.Unix(info.Timestamp, 0).UTC().Format(time.DateOnly)
	}
	return meta, nil
}

// probe runs `yt-dlp -j` once per id for concurrent callers. The command
// runs under its own timeout; each caller stops waiting when its ctx is done.
func (c *Client) probe(ctx context.Context, id string) (*videoInfo, error) {
	ch := c.probes.DoChan(id, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.probeTimeout)
		defer cancel()

		start := time.Now()
		out, err := c.exec.Execute(pctx, c.ytdlp, "-j", "--skip-download", "--no-warnings", "--no-playlist", WatchURL(id))
		if err != nil {
			return nil, fmt.Errorf("yt-dlp: %w", err)
		}
		c.log.Debug("yt-dlp probe finished", slog.String("video_id", id), slog.Duration("duration", time.Since(start)))
		return parseInfo(out)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*videoInfo), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("yt-dlp: %w", ctx.Err())
	}
}

// parseInfo decodes the last JSON line of yt-dlp output.
func parseInfo(out string) (*videoInfo, error) {
	var jsonLine string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") {
			jsonLine = line
		}
	}
	if jsonLine == "" {
		return nil, errors.New("yt-dlp: no JSON in output")
	}

	var info videoInfo
	if err := json.Unmarshal([]byte(jsonLine), &info); err != nil {
		return nil, fmt.Errorf("yt-dlp: decode output: %w", err)
	}
	return &info, nil
}

// selectTrack prefers manual subtitles over automatic captions, the configured
// languages over others, and an exact language over a regional variant.
func (c *Client) selectTrack(info *videoInfo) (trackItem, string, bool) {
	for _, lang := range c.languages {
		if t, ok := json3Track(info.Subtitles, lang); ok {
			return t, lang, true
		}
		for _, key := range sortedKeys(info.Subtitles) {
			if strings.HasPrefix(key, lang+"-") {
				if t, ok := json3Track(info.Subtitles, key); ok {
					return t, key, true
				}
			}
		}
		for _, key := range []string{lang + "-orig", lang} {
			if t, ok := json3Track(info.AutomaticCaptions, key); ok {
				return t, key, true
			}
		}
	}

	for _, key := range sortedKeys(info.Subtitles) {
		if t, ok := json3Track(info.Subtitles, key); ok {
			return t, key, true
		}
	}
	for _, key := range sortedKeys(info.AutomaticCaptions) {
		if strings.HasSuffix(key, "-orig") {
			if t, ok := json3Track(info.AutomaticCaptions, key); ok {
				return t, key, true
			}
		}
	}
	return trackItem{}, "", false
}

func json3Track(tracks map[string][]trackItem, lang string) (trackItem, bool) {
	for _, t := range tracks[lang] {
		if t.Ext == "json3" && t.URL != "" {
			return t, true
		}
	}
	return trackItem{}, false
}

func sortedKeys(m map[string][]trackItem) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fetch downloads rawURL with the client timeout and size limit.
func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch captions: unexpected http status %s", resp.Status)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("fetch captions: content-length %d exceeds limit %d", resp.ContentLength, c.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch captions: read body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("fetch captions: body too large (>%d bytes)", c.maxBytes)
	}
	return data, nil
}
