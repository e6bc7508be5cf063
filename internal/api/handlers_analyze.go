package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sydlexius/clearwater/internal/analysis"
	"github.com/sydlexius/clearwater/internal/eligibility"
	"github.com/sydlexius/clearwater/internal/spotify"
)

type analyzeRequest struct {
	PlaylistID string               `json:"playlistId"`
	Filters    *eligibility.Filters `json:"filters,omitempty"`
}

// handleAnalyze streams one analysis run as newline-delimited
// server-sent records. Every run emits zero or more progress records
// and exactly one terminal record, complete or error. The run itself
// is detached from the request context: a client that disconnects
// mid-run stops receiving records, but the run finishes.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) {
	var body analyzeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlistId is required")
		return
	}
	filters := eligibility.DefaultFilters()
	if body.Filters != nil {
		filters = *body.Filters
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := func(record map[string]any) {
		data, err := json.Marshal(record)
		if err != nil {
			r.logger.Error("encoding stream record", "error", err)
			return
		}
		// write errors mean the client left; the run carries on
		fmt.Fprintf(w, "data: %s\n\n", data) //nolint:errcheck
		flusher.Flush()
	}

	runCtx := context.WithoutCancel(req.Context())
	report, err := r.analyzer.Analyze(runCtx, body.PlaylistID, filters, func(e analysis.ProgressEvent) {
		stream(map[string]any{"type": "progress", "data": e})
	})
	if err != nil {
		r.logger.Error("analysis failed", "playlist", body.PlaylistID, "error", err)
		msg := "failed to analyze playlist"
		if errors.Is(err, spotify.ErrNotAuthenticated) {
			msg = "not_authenticated"
		}
		stream(map[string]any{"type": "error", "error": msg})
		return
	}

	stream(map[string]any{"type": "complete", "data": report})
}

func (r *Router) handleClean(w http.ResponseWriter, req *http.Request) {
	var body struct {
		PlaylistID      string                  `json:"playlistId"`
		ArtistsToRemove []analysis.ArtistResult `json:"artistsToRemove"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlistId is required")
		return
	}

	result, err := r.cleaner.RemoveArtists(req.Context(), body.PlaylistID, body.ArtistsToRemove)
	if err != nil {
		if errors.Is(err, spotify.ErrNotAuthenticated) {
			writeError(w, http.StatusUnauthorized, "not_authenticated")
			return
		}
		r.logger.Error("clean failed", "playlist", body.PlaylistID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to clean playlist")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
