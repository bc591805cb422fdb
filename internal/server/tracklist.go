package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/queue"
	"github.com/desertthunder/acura/internal/shared"
)

// LicenseCookie carries the subscriber license in browser players.
const LicenseCookie = "lck"

// TracklistStore is the part of [models.Store] the API reads and writes.
type TracklistStore interface {
	SubscriberByLicense(ctx context.Context, license string) (*models.Subscriber, error)
	Tracklist(ctx context.Context, subscriberID int64, day time.Time) ([]models.TracklistEntry, error)
	SetPlayback(ctx context.Context, subscriberID, suggestionID int64, at time.Time) error
}

// Publisher enqueues curation requests.
type Publisher interface {
	Publish(ctx context.Context, license, msgID string) error
}

// TracklistResponse is the body of GET /api/tracklist.
type TracklistResponse struct {
	Day    string                  `json:"day"`
	Tracks []models.TracklistEntry `json:"tracks"`
	Refill bool                    `json:"refill"`
}

// PlaybackRequest is the body of POST /api/playback.
type PlaybackRequest struct {
	SuggestionID int64 `json:"suggestion_id"`
}

// TracklistHandler serves tracklists and records playback.
type TracklistHandler struct {
	store     TracklistStore
	publisher Publisher
	threshold int
	location  *time.Location
	now       func() time.Time
	logger    *log.Logger
}

// NewTracklistHandler creates a handler. A nil publisher disables refills.
func NewTracklistHandler(store TracklistStore, publisher Publisher, cfg shared.Config, logger *log.Logger) *TracklistHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &TracklistHandler{
		store:     store,
		publisher: publisher,
		threshold: cfg.Server.RefillThreshold,
		location:  cfg.Curation.Location(),
		now:       time.Now,
		logger:    logger,
	}
}

// Routes implements [Handler].
func (h *TracklistHandler) Routes() []string {
	return []string{"GET /api/tracklist", "POST /api/playback"}
}

// ServeHTTP implements [http.Handler].
func (h *TracklistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tracklist":
		h.tracklist(w, r)
	case "/api/playback":
		h.playback(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// subscriber resolves the request license and writes the error response on failure.
func (h *TracklistHandler) subscriber(w http.ResponseWriter, r *http.Request) (*models.Subscriber, bool) {
	license := ""
	if c, err := r.Cookie(LicenseCookie); err == nil {
		license = strings.TrimSpace(c.Value)
	}
	if license == "" {
		license = strings.TrimSpace(r.URL.Query().Get("license"))
	}
	if license == "" {
		writeError(w, http.StatusUnauthorized, "license is required")
		return nil, false
	}

	sub, err := h.store.SubscriberByLicense(r.Context(), license)
	switch {
	case errors.Is(err, shared.ErrSubscriberNotFound):
		writeError(w, http.StatusUnauthorized, "unknown license")
		return nil, false
	case err != nil:
		h.logger.Error("subscriber lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return sub, true
}

func (h *TracklistHandler) tracklist(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscriber(w, r)
	if !ok {
		return
	}

	now := h.now()
	day := models.Day(now, h.location)
	entries, err := h.store.Tracklist(r.Context(), sub.ID, day)
	if err != nil {
		h.logger.Error("tracklist query failed", "subscriber", sub.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := TracklistResponse{Day: models.DayKey(day), Tracks: entries}
	if len(entries) <= h.threshold && h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), sub.License, queue.RefillMsgID(sub.License, now)); err != nil {
			h.logger.Warn("refill request not published", "subscriber", sub.ID, "err", err)
		} else {
			resp.Refill = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *TracklistHandler) playback(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscriber(w, r)
	if !ok {
		return
	}

	var req PlaybackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil || req.SuggestionID <= 0 {
		writeError(w, http.StatusBadRequest, "body must be {\"suggestion_id\": <positive integer>}")
		return
	}

	err := h.store.SetPlayback(r.Context(), sub.ID, req.SuggestionID, h.now())
	switch {
	case errors.Is(err, shared.ErrSuggestionNotFound):
		writeError(w, http.StatusNotFound, "suggestion not found")
	case err != nil:
		h.logger.Error("playback update failed", "subscriber", sub.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
