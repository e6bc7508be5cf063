package api

import (
	"encoding/json"
	"net/http"

	"github.com/sydlexius/clearwater/internal/message"
	"github.com/sydlexius/clearwater/internal/settings"
)

type generateMessageRequest struct {
	BandName     string `json:"bandName"`
	Members      string `json:"members,omitempty"`
	Song         string `json:"song,omitempty"`
	Notes        string `json:"notes,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

func (r *Router) handleGenerateMessage(w http.ResponseWriter, req *http.Request) {
	if !r.generator.Configured() {
		writeError(w, http.StatusInternalServerError, "message generation is not configured")
		return
	}

	var body generateMessageRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.BandName == "" {
		writeError(w, http.StatusBadRequest, "bandName is required")
		return
	}

	prompt := body.SystemPrompt
	if prompt == "" {
		stored, err := r.settings.SystemPrompt(req.Context())
		if err != nil {
			r.logger.Error("loading system prompt", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load system prompt")
			return
		}
		prompt = stored
	}

	text, err := r.generator.Generate(req.Context(), message.Request{
		BandName:     body.BandName,
		Members:      body.Members,
		Song:         body.Song,
		Notes:        body.Notes,
		SystemPrompt: prompt,
	})
	if err != nil {
		r.logger.Error("generating message", "band", body.BandName, "error", err)
		writeError(w, http.StatusBadGateway, "failed to generate message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": text})
}

func (r *Router) handleGetSystemPrompt(w http.ResponseWriter, req *http.Request) {
	prompt, err := r.settings.SystemPrompt(req.Context())
	if err != nil {
		r.logger.Error("loading system prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load system prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": prompt})
}

func (r *Router) handleSetSystemPrompt(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := r.settings.SetSystemPrompt(req.Context(), body.Prompt); err != nil {
		r.logger.Error("saving system prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save system prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (r *Router) handleDailyCount(w http.ResponseWriter, req *http.Request) {
	count, err := r.settings.DailyCount(req.Context())
	if err != nil {
		r.logger.Error("loading daily count", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load daily count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "limit": settings.DailyLimit})
}
