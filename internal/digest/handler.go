package digest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Handler exposes the digest HTTP endpoints.
type Handler struct {
	svc        *Service
	log        *slog.Logger
	production bool
}

// NewHandler returns a Handler that uses the given Service and Logger.
// In production error bodies omit the underlying cause.
func NewHandler(svc *Service, log *slog.Logger, production bool) *Handler {
	return &Handler{svc: svc, log: log, production: production}
}

type errorBody struct {
	Error     string    `json:"error"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Debug     string    `json:"debug,omitempty"`
}

// Summarize handles GET /summarize?url=... and GET /api/summarise?url=...
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ref := r.URL.Query().Get("url")
	if ref == "" {
		h.writeError(w, NewError(KindInvalidIdentifier, "Missing URL parameter", nil))
		return
	}

	summary, err := h.svc.Summarize(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Debug("summary served",
		slog.String("video_id", summary.VideoID),
		slog.Bool("cached", summary.Cached))
	writeJSON(w, http.StatusOK, summary)
}

// TopVideos handles GET /analytics/top.
func (h *Handler) TopVideos(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.TopUsage(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	de := AsError(err)
	status := de.HTTPStatus()

	attrs := []any{
		slog.String("kind", string(de.Kind)),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("summarize failed", attrs...)
	} else {
		h.log.Info("summarize rejected", attrs...)
	}

	body := errorBody{
		Error:     de.Detail,
		Kind:      de.Kind,
		Timestamp: time.Now().UTC(),
	}
	if body.Error == "" {
		body.Error = string(de.Kind)
	}
	if !h.production {
		if cause := errors.Unwrap(de); cause != nil {
			body.Debug = cause.Error()
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
