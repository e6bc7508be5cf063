package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/sydlexius/clearwater/internal/spotify"
)

func (r *Router) handleAuthURL(w http.ResponseWriter, req *http.Request) {
	state := uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]string{
		"url":   r.auth.AuthURL(state),
		"state": state,
	})
}

func (r *Router) handleCallback(w http.ResponseWriter, req *http.Request) {
	if errMsg := req.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadGateway, "authorization refused: "+errMsg)
		return
	}
	code := req.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	if err := r.auth.Exchange(req.Context(), code); err != nil {
		r.logger.Error("code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "code exchange failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>Spotify account connected. You can close this window.</p></body></html>") //nolint:errcheck
}

func (r *Router) handleAuthStatus(w http.ResponseWriter, req *http.Request) {
	ok, err := r.auth.Authenticated(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read auth state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": ok})
}

// handleDisconnect drops the stored token pair, forcing a fresh
// authorization flow on the next connect.
func (r *Router) handleDisconnect(w http.ResponseWriter, req *http.Request) {
	if err := r.settings.ClearToken(req.Context()); err != nil {
		r.logger.Error("clearing spotify token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (r *Router) handleListPlaylists(w http.ResponseWriter, req *http.Request) {
	playlists, err := r.playlists.ListPlaylists(req.Context())
	if err != nil {
		if errors.Is(err, spotify.ErrNotAuthenticated) {
			writeError(w, http.StatusUnauthorized, "not_authenticated")
			return
		}
		r.logger.Error("playlist listing failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch playlists")
		return
	}
	if playlists == nil {
		playlists = []spotify.Playlist{}
	}
	writeJSON(w, http.StatusOK, playlists)
}
